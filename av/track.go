package av

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Track is one live audio or video source.
//
// Tracks are safe for concurrent use. Audio frames written with WriteSamples
// are delivered synchronously to every sink registered with AddSink.
type Track struct {
	id    string
	kind  Kind
	label string

	enabled bool
	ended   bool

	sinks    map[uint64]SampleSink
	nextSink uint64
	onEnded  []func()

	mu sync.RWMutex
}

// NewTrack creates an enabled track of the given kind.
func NewTrack(kind Kind, label string) *Track {
	return &Track{
		id:      uuid.NewString(),
		kind:    kind,
		label:   label,
		enabled: true,
		sinks:   make(map[uint64]SampleSink),
	}
}

// ID returns the unique track identifier.
func (t *Track) ID() string {
	return t.id
}

// Kind returns whether this is an audio or video track.
func (t *Track) Kind() Kind {
	return t.kind
}

// Label returns the human-readable source name.
func (t *Track) Label() string {
	return t.label
}

// Enabled reports whether the track is currently enabled.
func (t *Track) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled enables or disables the track. Ended tracks ignore the call.
func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	t.enabled = enabled
}

// Ended reports whether Stop has been called.
func (t *Track) Ended() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ended
}

// OnEnded registers fn to run once when the track stops. If the track has
// already ended, fn runs immediately.
func (t *Track) OnEnded(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// AddSink registers a PCM sink and returns a function that removes it.
// The returned function is safe to call more than once.
func (t *Track) AddSink(sink SampleSink) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSink
	t.nextSink++
	t.sinks[id] = sink

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.sinks, id)
			t.mu.Unlock()
		})
	}
}

// SinkCount returns the number of registered sinks.
func (t *Track) SinkCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sinks)
}

// WriteSamples delivers a PCM frame to the track's sinks. A disabled track
// delivers a silent frame of the same length.
func (t *Track) WriteSamples(pcm []int16) error {
	if t.kind != KindAudio {
		return ErrNotAudioTrack
	}

	t.mu.RLock()
	if t.ended {
		t.mu.RUnlock()
		return ErrTrackEnded
	}
	frame := pcm
	if !t.enabled {
		frame = make([]int16, len(pcm))
	}
	sinks := make([]SampleSink, 0, len(t.sinks))
	for _, sink := range t.sinks {
		sinks = append(sinks, sink)
	}
	t.mu.RUnlock()

	for _, sink := range sinks {
		sink(frame)
	}
	return nil
}

// Stop ends the track. Sinks are dropped and OnEnded handlers run once.
func (t *Track) Stop() {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	t.enabled = false
	t.sinks = make(map[uint64]SampleSink)
	handlers := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Track.Stop",
		"track_id": t.id,
		"kind":     t.kind,
		"label":    t.label,
	}).Debug("Track stopped")

	for _, fn := range handlers {
		fn()
	}
}
