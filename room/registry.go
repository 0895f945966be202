package room

import (
	"fmt"
	"sort"
	"sync"

	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/av/audio"
	"github.com/sirupsen/logrus"
)

// Registry maps identities to participants, owns their streams and audio
// pipelines, and mirrors every change into a Sink.
type Registry struct {
	sink Sink
	cfg  audio.PipelineConfig

	mu           sync.Mutex
	participants map[string]*Participant
}

// NewRegistry creates a registry publishing into sink.
func NewRegistry(sink Sink, cfg audio.PipelineConfig) *Registry {
	if sink == nil {
		sink = NewMemorySink()
	}
	return &Registry{
		sink:         sink,
		cfg:          cfg,
		participants: make(map[string]*Participant),
	}
}

// Create adds a participant. An existing entry keeps its stream and state
// and only has its peer id refreshed.
func (r *Registry) Create(identity, peerID string, state ParticipantState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.participants[identity]; ok {
		p.PeerID = peerID
		return
	}
	state.Identity = identity
	r.participants[identity] = &Participant{State: state, PeerID: peerID}
	r.sink.Create(identity, state)

	logrus.WithFields(logrus.Fields{
		"function": "Registry.Create",
		"identity": identity,
		"peer_id":  peerID,
	}).Debug("Participant created")
}

// Has reports whether identity has an entry.
func (r *Registry) Has(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[identity]
	return ok
}

// Get returns a copy of the participant.
func (r *Registry) Get(identity string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[identity]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Update replaces the announced state of identity.
func (r *Registry) Update(identity string, state ParticipantState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[identity]
	if !ok {
		return fmt.Errorf("update %s: %w", identity, ErrUnknownParticipant)
	}
	state.Identity = identity
	p.State = state
	r.sink.Update(identity, state)
	return nil
}

// SetStream binds stream to identity. Any previous pipeline is removed
// before the new one is built; a nil stream clears both.
func (r *Registry) SetStream(identity string, stream *av.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[identity]
	if !ok {
		return fmt.Errorf("set stream %s: %w", identity, ErrUnknownParticipant)
	}

	if p.Pipeline != nil {
		p.Pipeline.Remove()
	}
	p.Stream, p.Pipeline = nil, nil

	if stream != nil {
		sink := r.sink
		pipeline, err := audio.NewPipeline(identity, stream, r.cfg, func(meta audio.Meta) {
			sink.UpdateMedia(identity, meta)
		})
		if err != nil {
			r.sink.UpdateStream(identity, nil)
			return fmt.Errorf("set stream %s: %w", identity, err)
		}
		p.Stream, p.Pipeline = stream, pipeline
	}
	r.sink.UpdateStream(identity, p.Stream)

	logrus.WithFields(logrus.Fields{
		"function":   "Registry.SetStream",
		"identity":   identity,
		"has_stream": stream != nil,
	}).Debug("Participant stream bound")

	return nil
}

// Delete removes identity, releasing its pipeline and stopping its stream.
func (r *Registry) Delete(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked(identity)
}

func (r *Registry) deleteLocked(identity string) {
	p, ok := r.participants[identity]
	if !ok {
		return
	}
	if p.Pipeline != nil {
		p.Pipeline.Remove()
	}
	if p.Stream != nil {
		p.Stream.Stop()
	}
	delete(r.participants, identity)
	r.sink.Delete(identity)

	logrus.WithFields(logrus.Fields{
		"function": "Registry.Delete",
		"identity": identity,
	}).Debug("Participant removed")
}

// Reset removes every participant.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for identity := range r.participants {
		r.deleteLocked(identity)
	}
	r.sink.Reset()
}

// Len returns the number of participants.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// Snapshot returns copies of every participant sorted by identity.
func (r *Registry) Snapshot() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State.Identity < out[j].State.Identity })
	return out
}

// streams returns every bound stream with its pipeline.
func (r *Registry) streams() []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Participant
	for _, p := range r.participants {
		if p.Stream != nil {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}
