package call

import "errors"

// Sentinel errors for call package operations.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrNoPendingCall indicates AcceptCall with no inbound call queued.
	ErrNoPendingCall = errors.New("no pending call")

	// ErrNotPrepared indicates StartCall before PrepareCall chose a channel.
	ErrNotPrepared = errors.New("call not prepared")

	// ErrNotInCall indicates an operation that needs an active call.
	ErrNotInCall = errors.New("not in a call")

	// ErrScreenCapture indicates the screen could not be captured.
	ErrScreenCapture = errors.New("screen capture failed")

	// ErrMissingCollaborator indicates Options lacks a required dependency.
	ErrMissingCollaborator = errors.New("missing collaborator")
)
