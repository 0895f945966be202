package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/transport"
	"github.com/sirupsen/logrus"
)

// Mesh is one peer's handle on the network's rooms.
type Mesh struct {
	network *Network
	self    string
}

// NewMesh creates a mesh handle with a fresh random peer id.
func (n *Network) NewMesh() *Mesh {
	return &Mesh{network: n, self: uuid.NewString()}
}

// SelfID returns the peer id other room members see.
func (m *Mesh) SelfID() string {
	return m.self
}

// JoinRoom joins the room named by cfg.AppID and channel, creating it if
// needed. Existing members and the newcomer each receive a PeerJoin.
func (m *Mesh) JoinRoom(ctx context.Context, cfg transport.RoomConfig, channel string) (transport.MeshRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cfg.AppID + "/" + channel
	m.network.mu.Lock()
	h, ok := m.network.hubs[key]
	if !ok {
		h = &hub{key: key, network: m.network, members: make(map[string]*Room)}
		m.network.hubs[key] = h
	}
	m.network.mu.Unlock()

	r := &Room{
		self:      m.self,
		hub:       h,
		cfg:       cfg,
		events:    newMailbox[transport.MeshEvent](),
		published: make(map[*av.Stream]map[string]*mirror),
	}
	if err := h.join(r); err != nil {
		r.events.discard()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Mesh.JoinRoom",
		"self":     m.self,
		"room":     key,
		"relays":   len(cfg.RelayURLs),
	}).Debug("Joined mesh room")

	return r, nil
}

// hub is the shared state of one room.
type hub struct {
	key     string
	network *Network

	mu      sync.Mutex
	members map[string]*Room
}

func (h *hub) join(r *Room) error {
	h.mu.Lock()
	if _, ok := h.members[r.self]; ok {
		h.mu.Unlock()
		return fmt.Errorf("join %s: peer %s already in room", h.key, r.self)
	}
	existing := make([]*Room, 0, len(h.members))
	for _, other := range h.members {
		existing = append(existing, other)
	}
	h.members[r.self] = r
	h.mu.Unlock()

	for _, other := range existing {
		other.events.push(transport.MeshEvent{Type: transport.PeerJoin, Peer: r.self})
		r.events.push(transport.MeshEvent{Type: transport.PeerJoin, Peer: other.self})
	}
	return nil
}

func (h *hub) leave(r *Room) {
	h.mu.Lock()
	if h.members[r.self] != r {
		h.mu.Unlock()
		return
	}
	delete(h.members, r.self)
	remaining := make([]*Room, 0, len(h.members))
	for _, other := range h.members {
		remaining = append(remaining, other)
	}
	empty := len(h.members) == 0
	h.mu.Unlock()

	if empty {
		h.network.mu.Lock()
		if h.network.hubs[h.key] == h {
			delete(h.network.hubs, h.key)
		}
		h.network.mu.Unlock()
	}

	for _, other := range remaining {
		other.dropPeer(r.self)
		other.events.push(transport.MeshEvent{Type: transport.PeerLeave, Peer: r.self})
	}
}

// targets returns the members other than self, limited to peers if given.
func (h *hub) targets(self string, peers []string) []*Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*Room
	if len(peers) == 0 {
		for id, member := range h.members {
			if id != self {
				out = append(out, member)
			}
		}
		return out
	}
	for _, id := range peers {
		if member, ok := h.members[id]; ok && id != self {
			out = append(out, member)
		}
	}
	return out
}

// mirror is the receiver-side copy of one published stream.
type mirror struct {
	stream *av.Stream

	mu     sync.Mutex
	tracks map[*av.Track]*av.Track
	detach map[*av.Track]func()
}

func newMirror() *mirror {
	return &mirror{
		stream: av.NewStream(),
		tracks: make(map[*av.Track]*av.Track),
		detach: make(map[*av.Track]func()),
	}
}

func (m *mirror) attach(src *av.Track) *av.Track {
	dst := av.NewTrack(src.Kind(), src.Label())
	m.stream.AddTrack(dst)
	m.bind(src, dst)
	return dst
}

func (m *mirror) bind(src, dst *av.Track) {
	var detach func()
	if src.Kind() == av.KindAudio {
		detach = src.AddSink(func(pcm []int16) {
			_ = dst.WriteSamples(pcm)
		})
	}

	m.mu.Lock()
	m.tracks[src] = dst
	if detach != nil {
		m.detach[src] = detach
	}
	m.mu.Unlock()

	src.OnEnded(func() {
		// Only the track currently bound ends the mirror.
		if m.isBound(src, dst) {
			dst.Stop()
		}
	})
}

func (m *mirror) isBound(src, dst *av.Track) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.tracks[src]
	return ok && current == dst
}

func (m *mirror) unbind(src *av.Track) *av.Track {
	m.mu.Lock()
	dst := m.tracks[src]
	detach := m.detach[src]
	delete(m.detach, src)
	delete(m.tracks, src)
	m.mu.Unlock()

	if detach != nil {
		detach()
	}
	return dst
}

func (m *mirror) release() {
	m.mu.Lock()
	sources := make([]*av.Track, 0, len(m.tracks))
	for src := range m.tracks {
		sources = append(sources, src)
	}
	m.mu.Unlock()

	for _, src := range sources {
		if dst := m.unbind(src); dst != nil {
			dst.Stop()
		}
	}
}

// Room is one member's view of a mesh room.
type Room struct {
	self   string
	hub    *hub
	cfg    transport.RoomConfig
	events *mailbox[transport.MeshEvent]

	mu        sync.Mutex
	left      bool
	published map[*av.Stream]map[string]*mirror
}

// Config returns the configuration the room was joined with.
func (r *Room) Config() transport.RoomConfig {
	return r.cfg
}

// SelfID returns this member's peer id.
func (r *Room) SelfID() string {
	return r.self
}

// Events delivers room activity until Leave.
func (r *Room) Events() <-chan transport.MeshEvent {
	return r.events.out
}

// Peers returns the other members.
func (r *Room) Peers() []string {
	targets := r.hub.targets(r.self, nil)
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.self)
	}
	return out
}

// Send delivers an action payload to peers, or everyone.
func (r *Room) Send(action string, payload []byte, peers ...string) error {
	if r.hasLeft() {
		return transport.ErrRoomLeft
	}
	for _, target := range r.hub.targets(r.self, peers) {
		target.events.push(transport.MeshEvent{
			Type:    transport.ActionMessage,
			Peer:    r.self,
			Action:  action,
			Payload: append([]byte(nil), payload...),
		})
	}
	return nil
}

// AddStream publishes stream to peers, or everyone. Publishing the same
// stream to a peer twice is a no-op.
func (r *Room) AddStream(stream *av.Stream, peers ...string) error {
	if stream == nil {
		return fmt.Errorf("add stream: nil stream")
	}
	if r.hasLeft() {
		return transport.ErrRoomLeft
	}

	for _, target := range r.hub.targets(r.self, peers) {
		r.mu.Lock()
		byPeer, ok := r.published[stream]
		if !ok {
			byPeer = make(map[string]*mirror)
			r.published[stream] = byPeer
		}
		if _, exists := byPeer[target.self]; exists {
			r.mu.Unlock()
			continue
		}
		m := newMirror()
		for _, src := range stream.Tracks() {
			m.attach(src)
		}
		byPeer[target.self] = m
		r.mu.Unlock()

		target.events.push(transport.MeshEvent{Type: transport.PeerStream, Peer: r.self, Stream: m.stream})
	}
	return nil
}

// RemoveStream withdraws stream from peers, or everyone. The receivers'
// tracks end.
func (r *Room) RemoveStream(stream *av.Stream, peers ...string) error {
	if stream == nil {
		return nil
	}
	r.mu.Lock()
	byPeer := r.published[stream]
	var released []*mirror
	if len(peers) == 0 {
		for _, m := range byPeer {
			released = append(released, m)
		}
		delete(r.published, stream)
	} else {
		for _, id := range peers {
			if m, ok := byPeer[id]; ok {
				released = append(released, m)
				delete(byPeer, id)
			}
		}
	}
	r.mu.Unlock()

	for _, m := range released {
		m.release()
	}
	return nil
}

// ReplaceTrack swaps old for replacement in every receiver's copy of stream.
// Receivers keep their track object and see a PeerTrack event. A nil old
// adds replacement as a new track.
func (r *Room) ReplaceTrack(old, replacement *av.Track, stream *av.Stream) error {
	if replacement == nil || stream == nil {
		return fmt.Errorf("replace track: nil track or stream")
	}
	if r.hasLeft() {
		return transport.ErrRoomLeft
	}

	type delivery struct {
		peer  string
		track *av.Track
		m     *mirror
	}
	var deliveries []delivery

	r.mu.Lock()
	for peer, m := range r.published[stream] {
		var dst *av.Track
		if old != nil {
			dst = m.unbind(old)
		}
		if dst == nil {
			dst = m.attach(replacement)
		} else {
			m.bind(replacement, dst)
		}
		deliveries = append(deliveries, delivery{peer: peer, track: dst, m: m})
	}
	r.mu.Unlock()

	for _, d := range deliveries {
		for _, target := range r.hub.targets(r.self, []string{d.peer}) {
			target.events.push(transport.MeshEvent{
				Type:   transport.PeerTrack,
				Peer:   r.self,
				Stream: d.m.stream,
				Track:  d.track,
			})
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Room.ReplaceTrack",
		"self":      r.self,
		"stream_id": stream.ID(),
		"receivers": len(deliveries),
	}).Debug("Track replaced")

	return nil
}

// Leave exits the room, ending every stream this member published.
func (r *Room) Leave() error {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return nil
	}
	r.left = true
	var released []*mirror
	for _, byPeer := range r.published {
		for _, m := range byPeer {
			released = append(released, m)
		}
	}
	r.published = make(map[*av.Stream]map[string]*mirror)
	r.mu.Unlock()

	for _, m := range released {
		m.release()
	}
	r.hub.leave(r)
	r.events.close()

	logrus.WithFields(logrus.Fields{
		"function": "Room.Leave",
		"self":     r.self,
		"room":     r.hub.key,
	}).Debug("Left mesh room")

	return nil
}

func (r *Room) hasLeft() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.left
}

// dropPeer releases the copies this member published to a departed peer.
func (r *Room) dropPeer(peer string) {
	r.mu.Lock()
	var released []*mirror
	for _, byPeer := range r.published {
		if m, ok := byPeer[peer]; ok {
			released = append(released, m)
			delete(byPeer, peer)
		}
	}
	r.mu.Unlock()

	for _, m := range released {
		m.release()
	}
}
