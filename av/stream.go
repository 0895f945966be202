package av

import (
	"sync"

	"github.com/google/uuid"
)

// Stream is an ordered set of tracks published or received as one unit.
type Stream struct {
	id     string
	tracks []*Track
	mu     sync.RWMutex
}

// NewStream creates a stream holding the given tracks. Nil tracks are skipped.
func NewStream(tracks ...*Track) *Stream {
	s := &Stream{id: uuid.NewString()}
	for _, t := range tracks {
		if t != nil {
			s.tracks = append(s.tracks, t)
		}
	}
	return s
}

// ID returns the unique stream identifier.
func (s *Stream) ID() string {
	return s.id
}

// Tracks returns a snapshot of every track in the stream.
func (s *Stream) Tracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// AudioTracks returns the stream's audio tracks.
func (s *Stream) AudioTracks() []*Track {
	return s.byKind(KindAudio)
}

// VideoTracks returns the stream's video tracks.
func (s *Stream) VideoTracks() []*Track {
	return s.byKind(KindVideo)
}

func (s *Stream) byKind(kind Kind) []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// AddTrack appends a track unless it is already part of the stream.
func (s *Stream) AddTrack(t *Track) {
	if t == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tracks {
		if existing == t {
			return
		}
	}
	s.tracks = append(s.tracks, t)
}

// RemoveTrack removes a track from the stream without stopping it.
// It reports whether the track was present.
func (s *Stream) RemoveTrack(t *Track) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.tracks {
		if existing == t {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// SetEnabled enables or disables every track of the given kind.
func (s *Stream) SetEnabled(kind Kind, enabled bool) {
	for _, t := range s.byKind(kind) {
		t.SetEnabled(enabled)
	}
}

// Stop stops every track in the stream.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
