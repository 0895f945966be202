package call

import (
	"context"
	"fmt"

	"github.com/opd-ai/meshcall/transport"
	"github.com/sirupsen/logrus"
)

// Listen makes sure a local endpoint exists and is accepting inbound
// calls. An existing endpoint is reused unless reset is set or it has been
// disconnected or destroyed.
func (c *Controller) Listen(ctx context.Context, reset bool) error {
	c.mu.Lock()
	old := c.endpoint
	if old != nil && (reset || old.Disconnected() || old.Destroyed()) {
		c.endpoint = nil
	} else {
		old = nil
	}
	if c.endpoint != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if old != nil {
		_ = old.Destroy()
	}

	endpoint, err := c.endpoints.NewEndpoint(ctx, transport.PeerID(c.identity))
	if err != nil {
		return fmt.Errorf("local endpoint: %w", err)
	}

	c.mu.Lock()
	if c.endpoint != nil {
		// Lost a race with another Listen.
		c.mu.Unlock()
		_ = endpoint.Destroy()
		return nil
	}
	c.endpoint = endpoint
	c.mu.Unlock()

	go c.acceptLoop(endpoint)

	logrus.WithFields(logrus.Fields{
		"function": "Controller.Listen",
		"peer_id":  endpoint.ID(),
		"reset":    reset,
	}).Debug("Local endpoint ready")

	return nil
}

// relisten re-opens the endpoint after teardown when AutoListen is set.
// A closed controller stays unreachable.
func (c *Controller) relisten() {
	c.mu.Lock()
	skip := !c.autoListen || c.closed
	c.mu.Unlock()
	if skip {
		return
	}
	if err := c.Listen(c.ctx, false); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.relisten",
			"identity": c.identity,
			"error":    err.Error(),
		}).Warn("Could not listen again after the call")
	}
}

// Endpoint returns the local endpoint, or nil.
func (c *Controller) Endpoint() transport.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

func (c *Controller) acceptLoop(endpoint transport.Endpoint) {
	for conn := range endpoint.Incoming() {
		go c.watchInbound(conn)
	}
}

func (c *Controller) watchInbound(conn transport.Connection) {
	for ev := range conn.Events() {
		switch ev.Type {
		case transport.ConnOpen:
			c.inboundOpened(conn)
		case transport.ConnClose:
			c.inboundClosed(conn)
		case transport.ConnError:
			logrus.WithFields(logrus.Fields{
				"function": "Controller.watchInbound",
				"peer":     conn.Peer(),
				"error":    fmt.Sprint(ev.Err),
			}).Error("Inbound connection error")
		default:
			logrus.WithFields(logrus.Fields{
				"function": "Controller.watchInbound",
				"peer":     conn.Peer(),
				"event":    ev.Type.String(),
			}).Debug("Ignoring inbound event")
		}
	}
	c.inboundClosed(conn)
}

func (c *Controller) inboundOpened(conn transport.Connection) {
	md := conn.Metadata()

	c.mu.Lock()
	c.incoming = append(c.incoming, conn)
	c.inbound = &inboundCall{channel: md.Channel, from: md.Identity, conn: conn}
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Controller.inboundOpened",
		"channel":  md.Channel,
		"from":     md.Identity,
		"username": md.DisplayName,
	}).Info("Receiving call")

	c.signals.ConnectionOpened.Set(true)
	if !md.CallStartedAt.IsZero() {
		c.signals.CallStartedAt.Set(md.CallStartedAt)
	}
	c.signals.PendingCall.Set(&Pending{Channel: md.Channel, Direction: Inbound, From: md.Identity})
}

func (c *Controller) inboundClosed(conn transport.Connection) {
	c.mu.Lock()
	found := false
	for i, queued := range c.incoming {
		if queued == conn {
			c.incoming = append(c.incoming[:i:i], c.incoming[i+1:]...)
			found = true
			break
		}
	}
	wasPending := c.inbound != nil && c.inbound.conn == conn
	if wasPending {
		c.inbound = nil
	}
	remaining := len(c.incoming)
	c.mu.Unlock()

	if !found {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Controller.inboundClosed",
		"from":     conn.Metadata().Identity,
	}).Info("Connection closed by caller")

	if remaining == 0 {
		c.signals.ConnectionOpened.Set(false)
	}
	if wasPending {
		c.signals.PendingCall.Set(nil)
	}
}
