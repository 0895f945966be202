package invite

import "errors"

// Sentinel errors for invite package operations.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrInvalidTransition indicates a state change the table does not allow.
	ErrInvalidTransition = errors.New("invalid invitation state transition")

	// ErrNoDialer indicates an attempt was started without a dialer.
	ErrNoDialer = errors.New("no dialer configured")
)

// ErrConnectTimeout indicates a connection that neither opened nor failed
// within the connect timeout.
var ErrConnectTimeout = errors.New("connection did not open in time")
