// Package invite implements the per-recipient call invitation handshake.
//
// Each recipient gets one Attempt, a small state machine driven by the
// events of a point-to-point connection:
//
//	Idle -> Connecting -> Connected -> Accepted
//	                   \            \-> Denied
//	                    \-> Errored -> Connecting (after a pause)
//	                               \-> RetryExhausted
//
// The callee accepts by sending transport.AckToken. Closing the connection
// before that declines the call. Connection errors are retried up to
// Config.MaxAttempts times. A ring that stays unanswered for
// Config.RingWindow is closed and recorded as Denied.
//
// Every transition is checked against a fixed table; an invalid transition
// is logged and rejected with ErrInvalidTransition, never applied.
//
// A Round runs one Attempt per recipient concurrently and can be cancelled
// as a whole when a newer invitation supersedes it.
package invite
