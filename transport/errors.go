package transport

import "errors"

// Sentinel errors for transport operations.
// These errors enable reliable error classification using errors.Is().

// Endpoint errors.
var (
	// ErrPeerUnavailable indicates the dialed peer is not reachable.
	ErrPeerUnavailable = errors.New("peer unavailable")

	// ErrDestroyed indicates the endpoint was destroyed.
	ErrDestroyed = errors.New("endpoint destroyed")

	// ErrIDTaken indicates another live endpoint already uses the id.
	ErrIDTaken = errors.New("endpoint id already in use")
)

// Connection errors.
var (
	// ErrConnectionClosed indicates a send on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Mesh errors.
var (
	// ErrRoomLeft indicates an operation on a room that was left.
	ErrRoomLeft = errors.New("room left")
)
