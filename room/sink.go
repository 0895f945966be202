package room

import (
	"sort"
	"sync"

	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/av/audio"
)

// Sink receives participant changes for rendering. Implementations must be
// safe for concurrent use: UpdateMedia is called from audio pipelines.
type Sink interface {
	Create(identity string, state ParticipantState)
	Update(identity string, state ParticipantState)
	UpdateStream(identity string, stream *av.Stream)
	UpdateMedia(identity string, meta audio.Meta)
	Delete(identity string)
	Reset()
}

// SinkEntry is what a MemorySink holds per identity.
type SinkEntry struct {
	State  ParticipantState
	Stream *av.Stream
	Meta   audio.Meta
}

// MemorySink keeps the latest entry per identity.
type MemorySink struct {
	mu      sync.RWMutex
	entries map[string]SinkEntry
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{entries: make(map[string]SinkEntry)}
}

// Create adds or replaces the entry for identity.
func (s *MemorySink) Create(identity string, state ParticipantState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[identity] = SinkEntry{State: state}
}

// Update replaces the state of identity, creating the entry if needed.
func (s *MemorySink) Update(identity string, state ParticipantState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[identity]
	e.State = state
	s.entries[identity] = e
}

// UpdateStream sets the stream of identity, creating the entry if needed.
func (s *MemorySink) UpdateStream(identity string, stream *av.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[identity]
	e.Stream = stream
	s.entries[identity] = e
}

// UpdateMedia sets the speaking/muted indicators of identity, creating the
// entry if needed.
func (s *MemorySink) UpdateMedia(identity string, meta audio.Meta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[identity]
	e.Meta = meta
	s.entries[identity] = e
}

// Delete removes identity.
func (s *MemorySink) Delete(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, identity)
}

// Reset removes every entry.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]SinkEntry)
}

// Get returns the entry for identity.
func (s *MemorySink) Get(identity string) (SinkEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[identity]
	return e, ok
}

// Identities returns every identity, sorted.
func (s *MemorySink) Identities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
