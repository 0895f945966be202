package memory

import (
	"context"
	"testing"
	"time"

	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinPair(t *testing.T) (transport.MeshRoom, transport.MeshRoom, *Mesh, *Mesh) {
	t.Helper()
	ctx := context.Background()
	n := NewNetwork()
	ma, mb := n.NewMesh(), n.NewMesh()
	cfg := transport.RoomConfig{AppID: "meshcall"}

	a, err := ma.JoinRoom(ctx, cfg, "chat-1")
	require.NoError(t, err)
	b, err := mb.JoinRoom(ctx, cfg, "chat-1")
	require.NoError(t, err)

	ev := recv(t, a.Events())
	require.Equal(t, transport.PeerJoin, ev.Type)
	require.Equal(t, mb.SelfID(), ev.Peer)
	ev = recv(t, b.Events())
	require.Equal(t, transport.PeerJoin, ev.Type)
	require.Equal(t, ma.SelfID(), ev.Peer)
	return a, b, ma, mb
}

func TestMeshRoomsAreIsolatedByChannel(t *testing.T) {
	ctx := context.Background()
	n := NewNetwork()
	a, err := n.NewMesh().JoinRoom(ctx, transport.RoomConfig{AppID: "x"}, "one")
	require.NoError(t, err)
	b, err := n.NewMesh().JoinRoom(ctx, transport.RoomConfig{AppID: "x"}, "two")
	require.NoError(t, err)

	assert.Empty(t, a.Peers())
	assert.Empty(t, b.Peers())
}

func TestMeshActionDelivery(t *testing.T) {
	a, b, ma, mb := joinPair(t)
	assert.Equal(t, []string{mb.SelfID()}, a.Peers())

	require.NoError(t, a.Send("did_sync", []byte(`"did:key:alice"`)))
	ev := recv(t, b.Events())
	assert.Equal(t, transport.ActionMessage, ev.Type)
	assert.Equal(t, ma.SelfID(), ev.Peer)
	assert.Equal(t, "did_sync", ev.Action)
	assert.Equal(t, `"did:key:alice"`, string(ev.Payload))

	require.NoError(t, b.Send("messages", []byte("x"), "unknown-peer"))
	require.NoError(t, b.Send("messages", []byte("y"), ma.SelfID()))
	ev = recv(t, a.Events())
	assert.Equal(t, "y", string(ev.Payload))
}

func TestMeshStreamIsMirrored(t *testing.T) {
	a, b, ma, _ := joinPair(t)

	mic := av.NewTrack(av.KindAudio, "microphone")
	cam := av.NewTrack(av.KindVideo, "camera")
	local := av.NewStream(mic, cam)
	require.NoError(t, a.AddStream(local))
	require.NoError(t, a.AddStream(local))

	ev := recv(t, b.Events())
	require.Equal(t, transport.PeerStream, ev.Type)
	assert.Equal(t, ma.SelfID(), ev.Peer)
	remote := ev.Stream
	require.Len(t, remote.AudioTracks(), 1)
	require.Len(t, remote.VideoTracks(), 1)
	remoteMic := remote.AudioTracks()[0]
	assert.NotSame(t, mic, remoteMic)

	got := make(chan []int16, 1)
	remoteMic.AddSink(func(pcm []int16) { got <- pcm })
	require.NoError(t, mic.WriteSamples([]int16{1, 2, 3}))
	assert.Equal(t, []int16{1, 2, 3}, recv(t, got))

	remoteMic.SetEnabled(false)
	assert.True(t, mic.Enabled(), "receiver state must not leak to sender")

	mic.Stop()
	assert.True(t, remoteMic.Ended())
}

func TestMeshReplaceTrackKeepsReceiverTrack(t *testing.T) {
	a, b, _, _ := joinPair(t)

	cam := av.NewTrack(av.KindVideo, "camera")
	local := av.NewStream(cam)
	require.NoError(t, a.AddStream(local))
	remoteCam := recv(t, b.Events()).Stream.VideoTracks()[0]

	screen := av.NewTrack(av.KindVideo, "screen")
	require.NoError(t, a.ReplaceTrack(cam, screen, local))

	ev := recv(t, b.Events())
	assert.Equal(t, transport.PeerTrack, ev.Type)
	assert.Same(t, remoteCam, ev.Track)

	cam.Stop()
	assert.False(t, remoteCam.Ended(), "replaced source no longer drives the receiver")
	screen.Stop()
	assert.True(t, remoteCam.Ended())
}

func TestMeshLeaveNotifiesAndEndsStreams(t *testing.T) {
	a, b, ma, _ := joinPair(t)

	local := av.NewStream(av.NewTrack(av.KindAudio, "microphone"))
	require.NoError(t, a.AddStream(local))
	remoteMic := recv(t, b.Events()).Stream.AudioTracks()[0]

	require.NoError(t, a.Leave())
	require.NoError(t, a.Leave())

	ev := recv(t, b.Events())
	assert.Equal(t, transport.PeerLeave, ev.Type)
	assert.Equal(t, ma.SelfID(), ev.Peer)
	assert.True(t, remoteMic.Ended())
	assert.Empty(t, b.Peers())

	requireClosed(t, a.Events())
	assert.ErrorIs(t, a.Send("messages", nil), transport.ErrRoomLeft)
}

func TestMeshRemoveStream(t *testing.T) {
	a, b, _, _ := joinPair(t)

	local := av.NewStream(av.NewTrack(av.KindAudio, "microphone"))
	require.NoError(t, a.AddStream(local))
	remoteMic := recv(t, b.Events()).Stream.AudioTracks()[0]

	require.NoError(t, a.RemoveStream(local))
	assert.True(t, remoteMic.Ended())
	assert.False(t, local.AudioTracks()[0].Ended())
}

func TestMailboxDiscardUnblocksPump(t *testing.T) {
	m := newMailbox[int]()
	m.push(1)
	m.push(2)
	m.discard()

	select {
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not exit")
	case _, ok := <-drain(m.out):
		assert.False(t, ok)
	}
}

func drain[T any](ch <-chan T) <-chan T {
	done := make(chan T)
	go func() {
		for range ch {
		}
		close(done)
	}()
	return done
}
