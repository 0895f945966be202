package invite

import (
	"context"
	"sync"

	"github.com/opd-ai/meshcall/transport"
	"github.com/sirupsen/logrus"
)

// Round is one invitation operation: an Attempt per recipient, run
// concurrently and cancelled together.
type Round struct {
	cancel context.CancelFunc
	done   chan struct{}

	attempts   map[string]*Attempt
	recipients []string

	mu       sync.Mutex
	outcomes map[string]Outcome
}

// Start invites every recipient concurrently. Duplicate and empty
// recipients are skipped. Cancelling ctx or calling Cancel stops every
// attempt still in flight.
func Start(ctx context.Context, dialer Dialer, recipients []string, md transport.Metadata, cfg Config, hooks Hooks) *Round {
	ctx, cancel := context.WithCancel(ctx)
	r := &Round{
		cancel:   cancel,
		done:     make(chan struct{}),
		attempts: make(map[string]*Attempt),
		outcomes: make(map[string]Outcome),
	}

	for _, recipient := range recipients {
		if recipient == "" {
			continue
		}
		if _, dup := r.attempts[recipient]; dup {
			continue
		}
		r.attempts[recipient] = NewAttempt(recipient)
		r.recipients = append(r.recipients, recipient)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "invite.Start",
		"recipients": len(r.recipients),
		"channel":    md.Channel,
	}).Info("Starting invitation round")

	var wg sync.WaitGroup
	for _, recipient := range r.recipients {
		attempt := r.attempts[recipient]
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := attempt.Run(ctx, dialer, md, cfg, hooks)
			r.mu.Lock()
			r.outcomes[out.Recipient] = out
			r.mu.Unlock()
		}()
	}

	go func() {
		wg.Wait()
		cancel()
		close(r.done)
	}()

	return r
}

// Recipients returns the invited identities in invitation order.
func (r *Round) Recipients() []string {
	return append([]string(nil), r.recipients...)
}

// Attempt returns the live attempt for recipient.
func (r *Round) Attempt(recipient string) (*Attempt, bool) {
	a, ok := r.attempts[recipient]
	return a, ok
}

// Cancel stops every attempt still in flight. Safe to call more than once.
func (r *Round) Cancel() {
	r.cancel()
}

// Done is closed once every attempt has settled.
func (r *Round) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until every attempt has settled and returns the outcomes by
// recipient.
func (r *Round) Wait() map[string]Outcome {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Outcome, len(r.outcomes))
	for k, v := range r.outcomes {
		out[k] = v
	}
	return out
}
