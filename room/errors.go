package room

import "errors"

// Sentinel errors for room package operations.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrClosed indicates an operation on a closed room.
	ErrClosed = errors.New("room closed")

	// ErrUnknownParticipant indicates an identity with no participant entry.
	ErrUnknownParticipant = errors.New("unknown participant")
)
