package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/opd-ai/meshcall/transport"
	"github.com/sirupsen/logrus"
)

// Network is a simulated signaling network and mesh.
type Network struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	hubs      map[string]*hub
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[string]*Endpoint),
		hubs:      make(map[string]*hub),
	}
}

// NewEndpoint registers a peer under id. The id is free again once the
// previous endpoint using it is destroyed.
func (n *Network) NewEndpoint(ctx context.Context, id string) (transport.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if existing, ok := n.endpoints[id]; ok && !existing.Destroyed() {
		return nil, fmt.Errorf("register %s: %w", id, transport.ErrIDTaken)
	}

	e := &Endpoint{
		id:       id,
		network:  n,
		incoming: newMailbox[transport.Connection](),
		conns:    make(map[*Conn]struct{}),
	}
	n.endpoints[id] = e

	logrus.WithFields(logrus.Fields{
		"function": "Network.NewEndpoint",
		"peer_id":  id,
	}).Debug("Endpoint registered")

	return e, nil
}

// Endpoint returns the live endpoint registered under id.
func (n *Network) Endpoint(id string) (*Endpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.endpoints[id]
	if !ok || e.Destroyed() {
		return nil, false
	}
	return e, true
}

// Disconnect marks the endpoint registered under id as cut off from the
// signaling network. Dials to it fail with transport.ErrPeerUnavailable.
func (n *Network) Disconnect(id string) {
	if e, ok := n.Endpoint(id); ok {
		e.mu.Lock()
		e.disconnected = true
		e.mu.Unlock()
	}
}

func (n *Network) remove(e *Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.endpoints[e.id] == e {
		delete(n.endpoints, e.id)
	}
}

// Endpoint is a peer on a Network.
type Endpoint struct {
	id       string
	network  *Network
	incoming *mailbox[transport.Connection]

	mu           sync.Mutex
	conns        map[*Conn]struct{}
	disconnected bool
	destroyed    bool
}

// ID returns the peer id.
func (e *Endpoint) ID() string {
	return e.id
}

// Connect dials peer. An unknown, destroyed, or disconnected peer produces a
// connection that reports a ConnError event.
func (e *Endpoint) Connect(ctx context.Context, peer string, md transport.Metadata) (transport.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil, fmt.Errorf("connect %s: %w", peer, transport.ErrDestroyed)
	}
	local := newConn(peer, md, e)
	e.conns[local] = struct{}{}
	e.mu.Unlock()

	remoteEndpoint, ok := e.network.Endpoint(peer)
	if !ok || remoteEndpoint.Disconnected() {
		local.fail(fmt.Errorf("connect %s: %w", peer, transport.ErrPeerUnavailable))
		return local, nil
	}

	remote := newConn(e.id, md, remoteEndpoint)
	local.pair(remote)
	remote.pair(local)

	if !remoteEndpoint.accept(remote) {
		local.fail(fmt.Errorf("connect %s: %w", peer, transport.ErrPeerUnavailable))
		return local, nil
	}

	local.events.push(transport.ConnEvent{Type: transport.ConnOpen})
	remote.events.push(transport.ConnEvent{Type: transport.ConnOpen})

	logrus.WithFields(logrus.Fields{
		"function": "Endpoint.Connect",
		"from":     e.id,
		"to":       peer,
		"channel":  md.Channel,
	}).Debug("Connection opened")

	return local, nil
}

// Incoming delivers connections dialed by other peers.
func (e *Endpoint) Incoming() <-chan transport.Connection {
	return e.incoming.out
}

// Disconnected reports whether Network.Disconnect cut this endpoint off.
func (e *Endpoint) Disconnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disconnected
}

// Destroyed reports whether Destroy was called.
func (e *Endpoint) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// Destroy closes every connection, closes Incoming, and frees the id.
func (e *Endpoint) Destroy() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	conns := make([]*Conn, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	e.network.remove(e)
	for _, c := range conns {
		_ = c.Close()
		c.events.discard()
	}
	e.incoming.discard()

	logrus.WithFields(logrus.Fields{
		"function":    "Endpoint.Destroy",
		"peer_id":     e.id,
		"connections": len(conns),
	}).Debug("Endpoint destroyed")

	return nil
}

func (e *Endpoint) accept(c *Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed || e.disconnected {
		return false
	}
	e.conns[c] = struct{}{}
	return e.incoming.push(c)
}

func (e *Endpoint) forget(c *Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, c)
}

// Conn is one side of an in-memory connection.
type Conn struct {
	peer   string
	md     transport.Metadata
	owner  *Endpoint
	events *mailbox[transport.ConnEvent]

	mu     sync.Mutex
	remote *Conn
	closed bool
	sent   []string
}

func newConn(peer string, md transport.Metadata, owner *Endpoint) *Conn {
	return &Conn{
		peer:   peer,
		md:     md,
		owner:  owner,
		events: newMailbox[transport.ConnEvent](),
	}
}

func (c *Conn) pair(remote *Conn) {
	c.mu.Lock()
	c.remote = remote
	c.mu.Unlock()
}

// Peer returns the remote peer id.
func (c *Conn) Peer() string {
	return c.peer
}

// Metadata returns the dialer's metadata.
func (c *Conn) Metadata() transport.Metadata {
	return c.md
}

// Events delivers lifecycle events.
func (c *Conn) Events() <-chan transport.ConnEvent {
	return c.events.out
}

// Send delivers data to the other side as a ConnData event.
func (c *Conn) Send(data string) error {
	c.mu.Lock()
	if c.closed || c.remote == nil {
		c.mu.Unlock()
		return transport.ErrConnectionClosed
	}
	c.sent = append(c.sent, data)
	remote := c.remote
	c.mu.Unlock()

	remote.events.push(transport.ConnEvent{Type: transport.ConnData, Data: data})
	return nil
}

// Sent returns every payload sent from this side.
func (c *Conn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// Closed reports whether the connection was closed from either side.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes both sides; each receives ConnClose.
func (c *Conn) Close() error {
	c.mu.Lock()
	remote := c.remote
	c.mu.Unlock()

	c.shutdown()
	if remote != nil {
		remote.shutdown()
	}
	return nil
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.events.push(transport.ConnEvent{Type: transport.ConnClose})
	c.events.close()
	c.owner.forget(c)
}

// fail reports err and ends the event stream without a ConnClose.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.events.push(transport.ConnEvent{Type: transport.ConnError, Err: err})
	c.events.close()
	c.owner.forget(c)

	logrus.WithFields(logrus.Fields{
		"function": "Conn.fail",
		"peer":     c.peer,
		"error":    err.Error(),
	}).Debug("Connection failed")
}
