package transport

import (
	"context"

	"github.com/opd-ai/meshcall/av"
)

// RoomConfig selects the mesh application namespace and its relays.
type RoomConfig struct {
	AppID           string
	RelayURLs       []string
	RelayRedundancy int
}

// MeshEventType identifies a MeshEvent.
type MeshEventType int

const (
	// PeerJoin reports a new peer in the room.
	PeerJoin MeshEventType = iota
	// PeerLeave reports a peer that left the room.
	PeerLeave
	// PeerStream carries a stream a peer published to us.
	PeerStream
	// PeerTrack carries a track a peer added to or swapped into a stream.
	PeerTrack
	// ActionMessage carries one typed action payload.
	ActionMessage
)

// String returns the event name.
func (t MeshEventType) String() string {
	switch t {
	case PeerJoin:
		return "peer_join"
	case PeerLeave:
		return "peer_leave"
	case PeerStream:
		return "peer_stream"
	case PeerTrack:
		return "peer_track"
	case ActionMessage:
		return "action"
	default:
		return "unknown"
	}
}

// MeshEvent is one room event. Fields beyond Type and Peer are set according
// to Type.
type MeshEvent struct {
	Type    MeshEventType
	Peer    string
	Stream  *av.Stream
	Track   *av.Track
	Action  string
	Payload []byte
}

// Mesh joins rooms.
type Mesh interface {
	JoinRoom(ctx context.Context, cfg RoomConfig, channel string) (MeshRoom, error)
}

// MeshRoom is one joined mesh session.
type MeshRoom interface {
	// Send delivers payload under action to peers, or to every peer when
	// none are given.
	Send(action string, payload []byte, peers ...string) error
	// Events delivers room activity until Leave. The channel is closed
	// afterwards.
	Events() <-chan MeshEvent
	// AddStream publishes stream to peers, or to every peer when none are
	// given.
	AddStream(stream *av.Stream, peers ...string) error
	// RemoveStream withdraws a published stream.
	RemoveStream(stream *av.Stream, peers ...string) error
	// ReplaceTrack swaps old for replacement in a published stream without
	// renegotiating it.
	ReplaceTrack(old, replacement *av.Track, stream *av.Stream) error
	// Peers returns the ids of the other peers in the room.
	Peers() []string
	// Leave exits the room. Safe to call more than once.
	Leave() error
}
