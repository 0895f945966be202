package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/transport"
	"github.com/opd-ai/meshcall/transport/memory"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var testConfig = transport.RoomConfig{AppID: "meshcall-test"}

// soundRecorder captures played sounds.
type soundRecorder struct {
	mu     sync.Mutex
	played []Sound
}

func (s *soundRecorder) Play(sound Sound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, sound)
}

func (s *soundRecorder) count(sound Sound) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.played {
		if p == sound {
			n++
		}
	}
	return n
}

// member bundles a joined room with its observers.
type member struct {
	room   *Room
	sink   *MemorySink
	sounds *soundRecorder
	mic    *av.Track
	stream *av.Stream
}

func join(t *testing.T, n *memory.Network, identity string, edit func(*Options)) *member {
	t.Helper()
	mic := av.NewTrack(av.KindAudio, "mic")
	stream := av.NewStream(mic, av.NewTrack(av.KindVideo, "camera"))
	m := &member{sink: NewMemorySink(), sounds: &soundRecorder{}, mic: mic, stream: stream}

	cfg := testPipelineConfig()
	opts := Options{
		Config:   testConfig,
		Channel:  "chat-1",
		Local:    ParticipantState{Identity: identity, DisplayName: identity[len("did:key:"):], AudioEnabled: true, VideoEnabled: true},
		Outgoing: stream,
		Sink:     m.sink,
		Sounds:   m.sounds,
		Pipeline: cfg,
		Clock:    clock.NewMock(),
	}
	if edit != nil {
		edit(&opts)
	}

	r, err := Join(context.Background(), n.NewMesh(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	m.room = r
	return m
}

// rawPeer joins the same mesh room without a Room, so tests control exactly
// what the room under test receives.
func rawPeer(t *testing.T, n *memory.Network) (transport.MeshRoom, string) {
	t.Helper()
	mesh := n.NewMesh()
	mr, err := mesh.JoinRoom(context.Background(), testConfig, "chat-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mr.Leave() })
	return mr, mesh.SelfID()
}

func presencePayload(t *testing.T, state ParticipantState) []byte {
	t.Helper()
	data, err := encodePresence(PresenceMessage{Type: MessageUpdateUser, Channel: "chat-1", User: state})
	require.NoError(t, err)
	return data
}

func identityPayload(t *testing.T, identity string) []byte {
	t.Helper()
	data, err := encodeIdentity(identity)
	require.NoError(t, err)
	return data
}
