package invite

import (
	"context"

	"github.com/opd-ai/meshcall/transport"
	"github.com/sirupsen/logrus"
)

// Dialer opens point-to-point connections. transport.Endpoint satisfies it.
type Dialer interface {
	Connect(ctx context.Context, peer string, md transport.Metadata) (transport.Connection, error)
}

// Run invites recipient and blocks until the attempt settles in a terminal
// state.
func Run(ctx context.Context, dialer Dialer, recipient string, md transport.Metadata, cfg Config, hooks Hooks) Outcome {
	return NewAttempt(recipient).Run(ctx, dialer, md, cfg, hooks)
}

// Run drives the attempt from Idle to a terminal state. The context cancels
// the attempt; a cancelled attempt ends in Denied with ReasonCancelled.
func (a *Attempt) Run(ctx context.Context, dialer Dialer, md transport.Metadata, cfg Config, hooks Hooks) Outcome {
	cfg = cfg.withDefaults()

	if dialer == nil {
		a.deny(hooks, "", ErrNoDialer)
		return a.Outcome()
	}
	if ctx.Err() != nil {
		a.deny(hooks, ReasonCancelled, nil)
		return a.Outcome()
	}

	for {
		if err := a.Transition(Connecting); err != nil {
			return a.Outcome()
		}

		if a.connect(ctx, dialer, md, cfg, hooks) != Errored {
			return a.Outcome()
		}

		if a.Attempts() >= cfg.MaxAttempts {
			_ = a.Transition(RetryExhausted)
			logrus.WithFields(logrus.Fields{
				"function":  "Attempt.Run",
				"recipient": a.recipient,
				"attempts":  a.Attempts(),
			}).Warn("Invitation retries exhausted")
			if hooks.OnExhausted != nil {
				hooks.OnExhausted(a.recipient)
			}
			return a.Outcome()
		}

		if !a.pause(ctx, cfg) {
			a.deny(hooks, ReasonCancelled, nil)
			return a.Outcome()
		}
	}
}

// connect performs one connection attempt and returns the state it reached:
// Accepted, Denied, or Errored.
func (a *Attempt) connect(ctx context.Context, dialer Dialer, md transport.Metadata, cfg Config, hooks Hooks) State {
	attempt := a.countAttempt()
	peer := transport.PeerID(a.recipient)

	logrus.WithFields(logrus.Fields{
		"function":  "Attempt.connect",
		"recipient": a.recipient,
		"peer":      peer,
		"attempt":   attempt,
		"channel":   md.Channel,
	}).Debug("Dialing invitee")

	conn, err := dialer.Connect(ctx, peer, md)
	if err != nil {
		if ctx.Err() != nil {
			a.deny(hooks, ReasonCancelled, nil)
			return Denied
		}
		return a.fail(err)
	}
	a.setConn(conn)

	timer := cfg.Clock.Timer(cfg.ConnectTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.closeConn()
			a.deny(hooks, ReasonCancelled, nil)
			return Denied

		case <-timer.C:
			a.closeConn()
			return a.fail(ErrConnectTimeout)

		case ev, ok := <-conn.Events():
			if !ok {
				a.takeConn()
				a.deny(hooks, ReasonDeclined, nil)
				return Denied
			}
			switch ev.Type {
			case transport.ConnOpen:
				if err := a.Transition(Connected); err != nil {
					a.closeConn()
					return a.fail(err)
				}
				if hooks.OnConnected != nil {
					hooks.OnConnected(a.recipient, cfg.Clock.Now())
				}
				return a.ring(ctx, conn, cfg, hooks)
			case transport.ConnClose:
				a.takeConn()
				a.deny(hooks, ReasonDeclined, nil)
				return Denied
			case transport.ConnError:
				a.closeConn()
				return a.fail(ev.Err)
			default:
				a.ignore(ev)
			}
		}
	}
}

// ring waits on an open connection for the ack.
func (a *Attempt) ring(ctx context.Context, conn transport.Connection, cfg Config, hooks Hooks) State {
	timer := cfg.Clock.Timer(cfg.RingWindow)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.closeConn()
			a.deny(hooks, ReasonCancelled, nil)
			return Denied

		case <-timer.C:
			a.closeConn()
			logrus.WithFields(logrus.Fields{
				"function":  "Attempt.ring",
				"recipient": a.recipient,
				"window":    cfg.RingWindow.String(),
			}).Info("Invitation rang out unanswered")
			a.deny(hooks, ReasonUnanswered, nil)
			return Denied

		case ev, ok := <-conn.Events():
			if !ok {
				a.takeConn()
				a.deny(hooks, ReasonDeclined, nil)
				return Denied
			}
			switch ev.Type {
			case transport.ConnData:
				if ev.Data != transport.AckToken {
					a.ignore(ev)
					continue
				}
				if err := a.Transition(Accepted); err != nil {
					a.closeConn()
					return a.fail(err)
				}
				a.closeConn()
				logrus.WithFields(logrus.Fields{
					"function":  "Attempt.ring",
					"recipient": a.recipient,
					"attempt":   a.Attempts(),
				}).Info("Invitation accepted")
				if hooks.OnAccepted != nil {
					hooks.OnAccepted(a.recipient)
				}
				return Accepted
			case transport.ConnClose:
				a.takeConn()
				a.deny(hooks, ReasonDeclined, nil)
				return Denied
			case transport.ConnError:
				a.closeConn()
				return a.fail(ev.Err)
			default:
				a.ignore(ev)
			}
		}
	}
}

// pause waits RetryPause. It reports false if ctx ended first.
func (a *Attempt) pause(ctx context.Context, cfg Config) bool {
	if cfg.RetryPause == 0 {
		return ctx.Err() == nil
	}
	timer := cfg.Clock.Timer(cfg.RetryPause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (a *Attempt) fail(err error) State {
	a.setReason("", err)
	fields := logrus.Fields{
		"function":  "Attempt.fail",
		"recipient": a.recipient,
		"attempt":   a.Attempts(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logrus.WithFields(fields).Warn("Invitation connection failed")

	if terr := a.Transition(Errored); terr != nil {
		return a.State()
	}
	return Errored
}

func (a *Attempt) deny(hooks Hooks, reason string, err error) {
	a.setReason(reason, err)
	if terr := a.Transition(Denied); terr != nil {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function":  "Attempt.deny",
		"recipient": a.recipient,
		"reason":    reason,
	}).Info("Invitation denied")
	if hooks.OnDenied != nil {
		hooks.OnDenied(a.recipient, reason)
	}
}

func (a *Attempt) closeConn() {
	if conn := a.takeConn(); conn != nil {
		_ = conn.Close()
	}
}

func (a *Attempt) ignore(ev transport.ConnEvent) {
	logrus.WithFields(logrus.Fields{
		"function":  "Attempt.ignore",
		"recipient": a.recipient,
		"event":     ev.Type.String(),
		"state":     a.State().String(),
	}).Debug("Ignoring connection event")
}
