package call

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/config"
	"github.com/opd-ai/meshcall/messaging"
	"github.com/opd-ai/meshcall/room"
	"github.com/opd-ai/meshcall/transport/memory"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var callStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// node is one controller on a shared test network.
type node struct {
	c       *Controller
	outbox  *messaging.Outbox
	devices *av.StaticDevices
	sink    *room.MemorySink
}

func newMockClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(callStart)
	return mock
}

func newNode(t *testing.T, n *memory.Network, mock *clock.Mock, identity string) *node {
	t.Helper()
	return newNodeWith(t, n, mock, identity, nil)
}

// newNodeWith lets a test adjust the options before the controller is built.
func newNodeWith(t *testing.T, n *memory.Network, mock *clock.Mock, identity string, adjust func(*Options)) *node {
	t.Helper()
	nd := &node{
		outbox:  messaging.NewOutbox(nil),
		devices: av.NewStaticDevices(),
		sink:    room.NewMemorySink(),
	}
	opts := Options{
		Identity:    identity,
		DisplayName: identity[len("did:key:"):],
		Endpoints:   n,
		Mesh:        n.NewMesh(),
		Devices:     nd.devices,
		Messages:    nd.outbox,
		Formatter:   messaging.DefaultFormatter{Location: time.UTC},
		Sink:        nd.sink,
		Config:      config.Default(),
		Clock:       mock,
	}
	if adjust != nil {
		adjust(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	nd.c = c
	return nd
}

// inCall starts a call without dialing anyone.
func (nd *node) inCall(t *testing.T, channel string) {
	t.Helper()
	nd.c.PrepareCall(nil, channel, false)
	require.NoError(t, nd.c.StartCall(context.Background(), false))
	require.True(t, nd.c.InCall())
}

func (nd *node) localStream(t *testing.T) *av.Stream {
	t.Helper()
	s, err := nd.c.LocalStream(context.Background(), false)
	require.NoError(t, err)
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// blankCamera returns a stream without tracks for camera-only captures, the
// way a device that lost its camera mid-call answers.
type blankCamera struct {
	*av.StaticDevices
}

func (d blankCamera) UserMedia(ctx context.Context, c av.Constraints) (*av.Stream, error) {
	if c.Video && !c.Audio {
		return av.NewStream(), nil
	}
	return d.StaticDevices.UserMedia(ctx, c)
}
