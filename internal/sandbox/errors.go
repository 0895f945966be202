package sandbox

import "errors"

// Sentinel errors for sandbox package operations.
// These errors enable reliable error classification using errors.Is().
var (
	// ErrUnknownNode indicates no node is registered under the identity.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNodeExists indicates a node is already registered under the identity.
	ErrNodeExists = errors.New("node already exists")
	// ErrUnknownDevice indicates a device name the sandbox does not control.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrBadAudio indicates audio the node's microphone could not take.
	ErrBadAudio = errors.New("unusable audio")
)
