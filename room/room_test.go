package room

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/transport/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomPeersExchangePresence(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)
	bob := join(t, n, "did:key:bob", nil)

	assert.Eventually(t, func() bool {
		p, ok := alice.room.Participant("did:key:bob")
		return ok && p.State.DisplayName == "bob" && p.Stream != nil && p.Pipeline != nil
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		p, ok := bob.room.Participant("did:key:alice")
		return ok && p.State.DisplayName == "alice" && p.Stream != nil
	}, waitFor, tick)

	assert.Equal(t, []string{"did:key:bob"}, alice.room.Present())
	assert.Equal(t, []string{"did:key:alice"}, bob.room.Present())
	assert.Eventually(t, func() bool {
		entry, ok := alice.sink.Get("did:key:bob")
		return ok && entry.Stream != nil
	}, waitFor, tick)
	assert.Equal(t, 1, alice.sounds.count(SoundJoined))
}

func TestRoomPresenceBeforeIdentity(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)
	peer, _ := rawPeer(t, n)

	require.NoError(t, peer.Send(ActionPresence, presencePayload(t, ParticipantState{Identity: "did:key:bob", DisplayName: "bob", AudioEnabled: true})))
	require.NoError(t, peer.Send(ActionIdentitySync, identityPayload(t, "did:key:bob")))

	assert.Eventually(t, func() bool {
		p, ok := alice.room.Participant("did:key:bob")
		return ok && p.State.DisplayName == "bob" && p.State.AudioEnabled
	}, waitFor, tick)
}

func TestRoomIdentityBeforePresence(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)
	peer, _ := rawPeer(t, n)

	require.NoError(t, peer.Send(ActionIdentitySync, identityPayload(t, "did:key:bob")))
	assert.Eventually(t, func() bool { return alice.room.registry.Has("did:key:bob") }, waitFor, tick)

	require.NoError(t, peer.Send(ActionPresence, presencePayload(t, ParticipantState{Identity: "did:key:bob", DisplayName: "bob", VideoEnabled: true})))
	assert.Eventually(t, func() bool {
		p, ok := alice.room.Participant("did:key:bob")
		return ok && p.State.DisplayName == "bob" && p.State.VideoEnabled
	}, waitFor, tick)
}

func TestRoomHoldsStreamUntilIdentity(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)
	peer, _ := rawPeer(t, n)

	stream := av.NewStream(av.NewTrack(av.KindAudio, "mic"))
	require.NoError(t, peer.AddStream(stream))
	require.NoError(t, peer.Send(ActionPresence, []byte(`{"type":"NONE"}`)))
	require.NoError(t, peer.Send(ActionIdentitySync, identityPayload(t, "did:key:bob")))

	assert.Eventually(t, func() bool {
		p, ok := alice.room.Participant("did:key:bob")
		return ok && p.Stream != nil && p.Pipeline != nil
	}, waitFor, tick)
}

func TestRoomIgnoresMalformedMessages(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)
	peer, _ := rawPeer(t, n)

	require.NoError(t, peer.Send(ActionIdentitySync, []byte(`""`)))
	require.NoError(t, peer.Send(ActionPresence, []byte(`{not json`)))
	require.NoError(t, peer.Send("unknown", []byte(`1`)))
	require.NoError(t, peer.Send(ActionIdentitySync, identityPayload(t, "did:key:bob")))

	assert.Eventually(t, func() bool { return alice.room.registry.Has("did:key:bob") }, waitFor, tick)
	assert.Equal(t, 1, alice.room.registry.Len())
}

func TestRoomPeerLeaveRemovesParticipant(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)
	bob := join(t, n, "did:key:bob", nil)

	var p Participant
	require.Eventually(t, func() bool {
		var ok bool
		p, ok = alice.room.Participant("did:key:bob")
		return ok && p.Stream != nil
	}, waitFor, tick)

	require.NoError(t, bob.room.Close())

	assert.Eventually(t, func() bool { return !alice.room.registry.Has("did:key:bob") }, waitFor, tick)
	assert.Eventually(t, func() bool { return alice.sounds.count(SoundDisconnect) == 1 }, waitFor, tick)
	for _, track := range p.Stream.Tracks() {
		assert.True(t, track.Ended())
	}
	assert.Empty(t, alice.room.Present())
	assert.True(t, alice.room.Empty())
}

func TestRoomRejoinSurvivesStaleLeave(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)

	first, _ := rawPeer(t, n)
	require.NoError(t, first.Send(ActionIdentitySync, identityPayload(t, "did:key:bob")))
	require.Eventually(t, func() bool { return alice.room.registry.Has("did:key:bob") }, waitFor, tick)

	second, secondID := rawPeer(t, n)
	require.NoError(t, second.Send(ActionIdentitySync, identityPayload(t, "did:key:bob")))
	require.Eventually(t, func() bool {
		p, ok := alice.room.Participant("did:key:bob")
		return ok && p.PeerID == secondID
	}, waitFor, tick)

	require.NoError(t, first.Leave())
	require.Eventually(t, func() bool { return alice.sounds.count(SoundDisconnect) == 1 }, waitFor, tick)

	p, ok := alice.room.Participant("did:key:bob")
	require.True(t, ok)
	assert.Equal(t, secondID, p.PeerID)
	assert.Equal(t, []string{"did:key:bob"}, alice.room.Present())
	assert.False(t, alice.room.Empty())

	require.NoError(t, second.Send(ActionPresence, presencePayload(t, ParticipantState{Identity: "did:key:bob", DisplayName: "bob again", AudioEnabled: true})))
	assert.Eventually(t, func() bool {
		p, ok := alice.room.Participant("did:key:bob")
		return ok && p.State.DisplayName == "bob again"
	}, waitFor, tick)

	require.NoError(t, second.Leave())
	assert.Eventually(t, func() bool { return !alice.room.registry.Has("did:key:bob") }, waitFor, tick)
	assert.Empty(t, alice.room.Present())
}

func TestRoomEmptyTeardownRunsOnce(t *testing.T) {
	n := memory.NewNetwork()
	var empties int32
	alice := join(t, n, "did:key:alice", func(o *Options) {
		o.OnEmpty = func() { atomic.AddInt32(&empties, 1) }
	})
	bob := join(t, n, "did:key:bob", nil)
	carol := join(t, n, "did:key:carol", nil)

	require.Eventually(t, func() bool { return len(alice.room.Present()) == 2 }, waitFor, tick)

	require.NoError(t, bob.room.Close())
	require.NoError(t, carol.room.Close())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&empties) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return atomic.LoadInt32(&empties) > 1 }, 100*time.Millisecond, tick)
}

func TestRoomCloseSuppressesEmptyTeardown(t *testing.T) {
	n := memory.NewNetwork()
	var empties int32
	alice := join(t, n, "did:key:alice", func(o *Options) {
		o.OnEmpty = func() { atomic.AddInt32(&empties, 1) }
	})
	join(t, n, "did:key:bob", nil)
	require.Eventually(t, func() bool { return !alice.room.Empty() }, waitFor, tick)

	require.NoError(t, alice.room.Close())
	require.NoError(t, alice.room.Close())

	assert.Eventually(t, func() bool {
		select {
		case <-alice.room.Done():
			return true
		default:
			return false
		}
	}, waitFor, tick)
	assert.Equal(t, int32(0), atomic.LoadInt32(&empties))
	assert.ErrorIs(t, alice.room.Notify(ParticipantState{}), ErrClosed)
	assert.ErrorIs(t, alice.room.Publish(av.NewStream()), ErrClosed)
}

func TestRoomStartedAtSetOnFirstPeer(t *testing.T) {
	n := memory.NewNetwork()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	var calls int32
	alice := join(t, n, "did:key:alice", func(o *Options) {
		o.Clock = mock
		o.OnStarted = func(time.Time) { atomic.AddInt32(&calls, 1) }
	})
	assert.True(t, alice.room.StartedAt().IsZero())

	join(t, n, "did:key:bob", nil)
	join(t, n, "did:key:carol", nil)

	assert.Eventually(t, func() bool { return len(alice.room.Present()) == 2 }, waitFor, tick)
	assert.Equal(t, mock.Now(), alice.room.StartedAt())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRoomDeafenSilencesInboundAudio(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)
	bob := join(t, n, "did:key:bob", nil)

	var p Participant
	require.Eventually(t, func() bool {
		var ok bool
		p, ok = alice.room.Participant("did:key:bob")
		return ok && p.Stream != nil
	}, waitFor, tick)

	alice.room.ToggleStreams(false, StreamDeafen)
	for _, track := range p.Stream.AudioTracks() {
		assert.False(t, track.Enabled())
	}
	for _, track := range p.Stream.VideoTracks() {
		assert.True(t, track.Enabled())
	}
	assert.False(t, alice.mic.Enabled())
	assert.True(t, bob.mic.Enabled(), "deafening must not mute the sender")

	alice.room.ToggleStreams(true, StreamDeafen)
	for _, track := range p.Stream.AudioTracks() {
		assert.True(t, track.Enabled())
	}
	assert.True(t, alice.mic.Enabled())
}

func TestRoomUndeafenKeepsMicMuted(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)

	muted := ParticipantState{Identity: "did:key:alice", DisplayName: "alice"}
	require.NoError(t, alice.room.Notify(muted))
	alice.room.ToggleStreams(false, StreamDeafen)
	alice.room.ToggleStreams(true, StreamDeafen)

	assert.False(t, alice.mic.Enabled())
}

func TestRoomToggleVideoAndAudio(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)

	alice.room.ToggleStreams(false, StreamVideo)
	for _, track := range alice.stream.VideoTracks() {
		assert.False(t, track.Enabled())
	}
	assert.True(t, alice.mic.Enabled())

	alice.room.ToggleStreams(false, StreamAudio)
	assert.False(t, alice.mic.Enabled())
}

func TestRoomNotifyReachesPeers(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)
	bob := join(t, n, "did:key:bob", nil)
	require.Eventually(t, func() bool { return bob.room.registry.Has("did:key:alice") }, waitFor, tick)

	require.NoError(t, alice.room.Notify(ParticipantState{Identity: "did:key:alice", DisplayName: "alice", ScreenShareEnabled: true}))

	assert.Eventually(t, func() bool {
		p, ok := bob.room.Participant("did:key:alice")
		return ok && p.State.ScreenShareEnabled
	}, waitFor, tick)
}

func TestRoomReplaceTrackKeepsReceiverTrack(t *testing.T) {
	n := memory.NewNetwork()
	alice := join(t, n, "did:key:alice", nil)
	bob := join(t, n, "did:key:bob", nil)

	var p Participant
	require.Eventually(t, func() bool {
		var ok bool
		p, ok = bob.room.Participant("did:key:alice")
		return ok && p.Stream != nil
	}, waitFor, tick)
	before := p.Stream.VideoTracks()
	require.Len(t, before, 1)

	screen := av.NewTrack(av.KindVideo, "screen")
	require.NoError(t, alice.room.ReplaceTrack(alice.stream.VideoTracks()[0], screen))

	after := p.Stream.VideoTracks()
	require.Len(t, after, 1)
	assert.Same(t, before[0], after[0])
	assert.False(t, after[0].Ended())
}
