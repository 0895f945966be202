package observe

import (
	"sort"
	"sync"
)

// Value is a mutex-guarded value that notifies subscribers on change.
type Value[T any] struct {
	mu    sync.Mutex
	v     T
	equal func(a, b T) bool
	subs  map[uint64]func(T)
	next  uint64
}

// New creates a Value that notifies subscribers on every Set.
func New[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: make(map[uint64]func(T))}
}

// NewComparable creates a Value that skips notification when Set stores a
// value equal to the current one.
func NewComparable[T comparable](initial T) *Value[T] {
	v := New(initial)
	v.equal = func(a, b T) bool { return a == b }
	return v
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.v
}

// Set stores x and notifies subscribers.
func (v *Value[T]) Set(x T) {
	v.Update(func(T) T { return x })
}

// Update replaces the value with fn(current) atomically, then notifies
// subscribers with the new value.
func (v *Value[T]) Update(fn func(T) T) {
	v.mu.Lock()
	old := v.v
	v.v = fn(old)
	if v.equal != nil && v.equal(old, v.v) {
		v.mu.Unlock()
		return
	}
	current := v.v
	subs := v.snapshotLocked()
	v.mu.Unlock()

	for _, fn := range subs {
		fn(current)
	}
}

// Subscribe registers fn for future changes and returns a function that
// removes it. The returned function is safe to call more than once.
func (v *Value[T]) Subscribe(fn func(T)) func() {
	v.mu.Lock()
	id := v.next
	v.next++
	v.subs[id] = fn
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// snapshotLocked returns subscribers in registration order.
func (v *Value[T]) snapshotLocked() []func(T) {
	ids := make([]uint64, 0, len(v.subs))
	for id := range v.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]func(T), 0, len(ids))
	for _, id := range ids {
		out = append(out, v.subs[id])
	}
	return out
}
