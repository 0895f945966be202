package invite

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/meshcall/transport"
)

// fakeConn replays a fixed list of events.
type fakeConn struct {
	peer   string
	md     transport.Metadata
	events chan transport.ConnEvent

	mu     sync.Mutex
	closed bool
}

func newFakeConn(events ...transport.ConnEvent) *fakeConn {
	c := &fakeConn{events: make(chan transport.ConnEvent, len(events)+1)}
	for _, ev := range events {
		c.events <- ev
	}
	return c
}

func (c *fakeConn) Peer() string                       { return c.peer }
func (c *fakeConn) Metadata() transport.Metadata       { return c.md }
func (c *fakeConn) Send(string) error                  { return nil }
func (c *fakeConn) Events() <-chan transport.ConnEvent { return c.events }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// scriptDialer answers each Connect call with script(call), counting from 1.
type scriptDialer struct {
	script func(call int, peer string) (transport.Connection, error)

	mu    sync.Mutex
	calls int
	peers []string
	conns []*fakeConn
}

func (d *scriptDialer) Connect(ctx context.Context, peer string, md transport.Metadata) (transport.Connection, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.peers = append(d.peers, peer)
	d.mu.Unlock()

	conn, err := d.script(call, peer)
	if fc, ok := conn.(*fakeConn); ok {
		fc.peer = peer
		fc.md = md
		d.mu.Lock()
		d.conns = append(d.conns, fc)
		d.mu.Unlock()
	}
	return conn, err
}

func (d *scriptDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *scriptDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// hookRecorder captures hook invocations.
type hookRecorder struct {
	mu        sync.Mutex
	connected []string
	accepted  []string
	denied    map[string]string
	exhausted []string
}

func newHookRecorder() *hookRecorder {
	return &hookRecorder{denied: make(map[string]string)}
}

func (h *hookRecorder) hooks() Hooks {
	return Hooks{
		OnConnected: func(r string, _ time.Time) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.connected = append(h.connected, r)
		},
		OnAccepted: func(r string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.accepted = append(h.accepted, r)
		},
		OnDenied: func(r, reason string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.denied[r] = reason
		},
		OnExhausted: func(r string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.exhausted = append(h.exhausted, r)
		},
	}
}
