package invite

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/meshcall/transport"
	"github.com/sirupsen/logrus"
)

// Denial reasons reported in Outcome.Reason.
const (
	ReasonDeclined   = "declined"
	ReasonUnanswered = "unanswered"
	ReasonCancelled  = "cancelled"
)

// Config tunes the handshake.
type Config struct {
	// MaxAttempts bounds connection attempts per recipient.
	MaxAttempts int
	// RingWindow is how long an open connection may ring unanswered.
	RingWindow time.Duration
	// RetryPause separates a failed attempt from the next one.
	RetryPause time.Duration
	// ConnectTimeout bounds the wait for a connection to open; a silent
	// connection counts as an error.
	ConnectTimeout time.Duration
	// Clock drives every timer. Nil means the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns the production handshake settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		RingWindow:     30 * time.Second,
		RetryPause:     3 * time.Second,
		ConnectTimeout: 10 * time.Second,
		Clock:          clock.New(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RingWindow <= 0 {
		c.RingWindow = d.RingWindow
	}
	if c.RetryPause < 0 {
		c.RetryPause = d.RetryPause
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}

// Hooks observe an attempt as it runs. Any hook may be nil. Hooks run on the
// attempt's goroutine.
type Hooks struct {
	// OnConnected runs when the connection opens, with the time it opened.
	OnConnected func(recipient string, at time.Time)
	// OnAccepted runs when the recipient accepts.
	OnAccepted func(recipient string)
	// OnDenied runs when the attempt ends in Denied.
	OnDenied func(recipient, reason string)
	// OnExhausted runs when the attempt ends in RetryExhausted.
	OnExhausted func(recipient string)
}

// Outcome is the settled result of one Attempt.
type Outcome struct {
	Recipient string
	State     State
	Attempts  int
	Reason    string
	Err       error
}

// Accepted reports whether the recipient accepted.
func (o Outcome) Accepted() bool {
	return o.State == Accepted
}

// Attempt is the invitation state of one recipient.
type Attempt struct {
	recipient string

	mu       sync.Mutex
	state    State
	attempts int
	conn     transport.Connection
	history  []State
	reason   string
	lastErr  error
}

// NewAttempt creates an Idle attempt for recipient.
func NewAttempt(recipient string) *Attempt {
	return &Attempt{recipient: recipient, state: Idle, history: []State{Idle}}
}

// Recipient returns the invited identity.
func (a *Attempt) Recipient() string {
	return a.recipient
}

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Attempts returns the number of connection attempts made.
func (a *Attempt) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

// History returns every state the attempt has been in, in order.
func (a *Attempt) History() []State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]State(nil), a.history...)
}

// Outcome returns the attempt's current result.
func (a *Attempt) Outcome() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Outcome{
		Recipient: a.recipient,
		State:     a.state,
		Attempts:  a.attempts,
		Reason:    a.reason,
		Err:       a.lastErr,
	}
}

// Transition moves the attempt to next if the table allows it.
func (a *Attempt) Transition(next State) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !CanTransition(a.state, next) {
		logrus.WithFields(logrus.Fields{
			"function":  "Attempt.Transition",
			"recipient": a.recipient,
			"from":      a.state.String(),
			"to":        next.String(),
		}).Error("Rejected invalid invitation transition")
		return fmt.Errorf("%s -> %s: %w", a.state, next, ErrInvalidTransition)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Attempt.Transition",
		"recipient": a.recipient,
		"from":      a.state.String(),
		"to":        next.String(),
		"attempt":   a.attempts,
	}).Debug("Invitation state changed")

	a.state = next
	a.history = append(a.history, next)
	return nil
}

func (a *Attempt) setConn(conn transport.Connection) {
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
}

func (a *Attempt) takeConn() transport.Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	conn := a.conn
	a.conn = nil
	return conn
}

func (a *Attempt) countAttempt() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts++
	return a.attempts
}

func (a *Attempt) setReason(reason string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reason = reason
	if err != nil {
		a.lastErr = err
	}
}
