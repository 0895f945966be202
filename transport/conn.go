package transport

import "context"

// ConnEventType identifies a Connection lifecycle event.
type ConnEventType int

const (
	// ConnOpen reports that the connection is usable.
	ConnOpen ConnEventType = iota
	// ConnData carries one inbound payload.
	ConnData
	// ConnClose reports that either side closed the connection. It is the
	// last event; the channel is closed right after it.
	ConnClose
	// ConnError reports a failure to establish or keep the connection.
	ConnError
)

// String returns the event name.
func (t ConnEventType) String() string {
	switch t {
	case ConnOpen:
		return "open"
	case ConnData:
		return "data"
	case ConnClose:
		return "close"
	case ConnError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnEvent is one Connection lifecycle event.
type ConnEvent struct {
	Type ConnEventType
	Data string
	Err  error
}

// Connection is a point-to-point data channel between two peers.
type Connection interface {
	// Peer returns the remote peer id.
	Peer() string
	// Metadata returns the metadata the dialing side attached.
	Metadata() Metadata
	// Send delivers one payload to the remote side.
	Send(data string) error
	// Close closes both sides. Safe to call more than once.
	Close() error
	// Events delivers lifecycle events until the connection closes.
	Events() <-chan ConnEvent
}

// Endpoint is the local peer on the point-to-point network.
type Endpoint interface {
	// ID returns the peer id other peers dial.
	ID() string
	// Connect dials peer. Failures after the request is issued arrive as
	// ConnError events.
	Connect(ctx context.Context, peer string, md Metadata) (Connection, error)
	// Incoming delivers connections dialed by remote peers. The channel is
	// closed when the endpoint is destroyed.
	Incoming() <-chan Connection
	// Disconnected reports whether the endpoint lost the signaling network.
	Disconnected() bool
	// Destroyed reports whether Destroy was called.
	Destroyed() bool
	// Destroy closes every connection and releases the id.
	Destroy() error
}

// EndpointFactory creates endpoints.
type EndpointFactory interface {
	NewEndpoint(ctx context.Context, id string) (Endpoint, error)
}
