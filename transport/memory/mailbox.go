package memory

import "sync"

// mailbox is an unbounded FIFO whose items are forwarded to out by a pump
// goroutine. out is closed once the mailbox is closed and drained, or as
// soon as it is discarded.
type mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool

	wake    chan struct{}
	stop    chan struct{}
	stopped sync.Once
	out     chan T
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		out:  make(chan T),
	}
	go m.pump()
	return m
}

// push enqueues v. It reports false if the mailbox is closed.
func (m *mailbox[T]) push(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()
	m.signal()
	return true
}

// close stops accepting items; queued items are still delivered.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

// discard closes the mailbox and drops anything not yet delivered.
func (m *mailbox[T]) discard() {
	m.close()
	m.stopped.Do(func() { close(m.stop) })
}

func (m *mailbox[T]) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-m.wake:
			case <-m.stop:
				return
			}
			continue
		}
		v := m.queue[0]
		var zero T
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- v:
		case <-m.stop:
			return
		}
	}
}
