package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/av/audio"
	"github.com/opd-ai/meshcall/transport"
	"github.com/sirupsen/logrus"
)

// StreamKind selects what ToggleStreams affects.
type StreamKind int

const (
	// StreamVideo toggles the outgoing video tracks.
	StreamVideo StreamKind = iota
	// StreamAudio toggles the outgoing microphone.
	StreamAudio
	// StreamDeafen toggles every inbound audio track and the outgoing
	// microphone.
	StreamDeafen
)

// Options configures a Room.
type Options struct {
	// Config selects the mesh namespace and relays.
	Config transport.RoomConfig
	// Channel is the conversation the call belongs to.
	Channel string
	// Local is the state announced for the local participant.
	Local ParticipantState
	// Outgoing is published to every peer that joins. May be nil.
	Outgoing *av.Stream
	// Sink receives participant changes. Nil means a fresh MemorySink.
	Sink Sink
	// Sounds plays join and leave sounds. Nil means NoSounds.
	Sounds SoundPlayer
	// Pipeline configures the audio pipelines of inbound streams.
	Pipeline audio.PipelineConfig
	// Clock stamps the call start. Nil means the wall clock.
	Clock clock.Clock

	// OnEmpty runs once, on its own goroutine, when the last peer leaves.
	OnEmpty func()
	// OnPresent receives the present identities after every change.
	OnPresent func(identities []string)
	// OnStarted receives the call start time when the first peer joins.
	OnStarted func(at time.Time)
}

// Room is one joined mesh session.
type Room struct {
	mesh      transport.MeshRoom
	channel   string
	sounds    SoundPlayer
	clock     clock.Clock
	registry  *Registry
	onEmpty   func()
	onPresent func([]string)
	onStarted func(time.Time)

	mu              sync.Mutex
	local           ParticipantState
	outgoing        *av.Stream
	deafened        bool
	peers           map[string]string
	pendingPresence map[string]ParticipantState
	pendingStreams  map[string]*av.Stream
	present         []string
	startedAt       time.Time
	closed          bool

	emptyOnce sync.Once
	done      chan struct{}
}

// Join joins the mesh room for opts.Channel, starts consuming its events,
// and announces the local participant.
func Join(ctx context.Context, mesh transport.Mesh, opts Options) (*Room, error) {
	mr, err := mesh.JoinRoom(ctx, opts.Config, opts.Channel)
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", opts.Channel, err)
	}

	if opts.Sounds == nil {
		opts.Sounds = NoSounds{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	r := &Room{
		mesh:            mr,
		channel:         opts.Channel,
		sounds:          opts.Sounds,
		clock:           opts.Clock,
		registry:        NewRegistry(opts.Sink, opts.Pipeline),
		onEmpty:         opts.OnEmpty,
		onPresent:       opts.OnPresent,
		onStarted:       opts.OnStarted,
		local:           opts.Local,
		outgoing:        opts.Outgoing,
		deafened:        opts.Local.Deafened,
		peers:           make(map[string]string),
		pendingPresence: make(map[string]ParticipantState),
		pendingStreams:  make(map[string]*av.Stream),
		done:            make(chan struct{}),
	}
	go r.loop()

	logrus.WithFields(logrus.Fields{
		"function": "room.Join",
		"channel":  opts.Channel,
		"identity": opts.Local.Identity,
	}).Info("Joined call room")

	if err := r.broadcastPresence(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "room.Join",
			"channel":  opts.Channel,
			"error":    err.Error(),
		}).Warn("Initial presence broadcast failed")
	}
	return r, nil
}

// Channel returns the conversation id.
func (r *Room) Channel() string {
	return r.channel
}

// Done is closed once the event loop has exited after Close.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Empty reports whether no remote peer is connected.
func (r *Room) Empty() bool {
	return len(r.mesh.Peers()) == 0
}

// StartedAt returns when the first peer joined, or the zero time.
func (r *Room) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// Present returns the identities that completed identity-sync, in arrival
// order.
func (r *Room) Present() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.present...)
}

// Participants returns every known participant.
func (r *Room) Participants() []Participant {
	return r.registry.Snapshot()
}

// Participant returns the participant for identity.
func (r *Room) Participant(identity string) (Participant, bool) {
	return r.registry.Get(identity)
}

// Notify stores state as the local participant's state and announces it to
// peers, or to every peer when none are given.
func (r *Room) Notify(state ParticipantState, peers ...string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.local = state
	r.mu.Unlock()
	return r.broadcastPresence(peers...)
}

// ToggleStreams applies a device toggle. Video and audio affect only the
// outgoing stream. Deafen affects every inbound audio track and the outgoing
// microphone; un-deafening restores the microphone to the announced local
// audio state.
func (r *Room) ToggleStreams(enabled bool, kind StreamKind) {
	r.mu.Lock()
	outgoing := r.outgoing
	micAllowed := r.local.AudioEnabled
	if kind == StreamDeafen {
		r.deafened = !enabled
	}
	r.mu.Unlock()

	switch kind {
	case StreamVideo:
		if outgoing != nil {
			outgoing.SetEnabled(av.KindVideo, enabled)
		}
	case StreamAudio:
		if outgoing != nil {
			outgoing.SetEnabled(av.KindAudio, enabled)
		}
	case StreamDeafen:
		for _, p := range r.registry.streams() {
			p.Stream.SetEnabled(av.KindAudio, enabled)
			p.Pipeline.Refresh()
		}
		if outgoing != nil {
			outgoing.SetEnabled(av.KindAudio, enabled && micAllowed)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Room.ToggleStreams",
		"channel":  r.channel,
		"kind":     kind,
		"enabled":  enabled,
	}).Debug("Streams toggled")
}

// Publish makes stream the outgoing stream and sends it to every peer,
// withdrawing the previous one.
func (r *Room) Publish(stream *av.Stream) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	old := r.outgoing
	r.outgoing = stream
	r.mu.Unlock()

	if old != nil && old != stream {
		if err := r.mesh.RemoveStream(old); err != nil {
			return fmt.Errorf("withdraw stream: %w", err)
		}
	}
	if stream == nil {
		return nil
	}
	if err := r.mesh.AddStream(stream); err != nil {
		return fmt.Errorf("publish stream: %w", err)
	}
	return nil
}

// Unpublish withdraws stream from every peer.
func (r *Room) Unpublish(stream *av.Stream) error {
	if stream == nil {
		return nil
	}
	r.mu.Lock()
	if r.outgoing == stream {
		r.outgoing = nil
	}
	r.mu.Unlock()

	if err := r.mesh.RemoveStream(stream); err != nil {
		return fmt.Errorf("withdraw stream: %w", err)
	}
	return nil
}

// ReplaceTrack swaps old for replacement in the outgoing stream as peers
// see it.
func (r *Room) ReplaceTrack(old, replacement *av.Track) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	outgoing := r.outgoing
	r.mu.Unlock()

	if outgoing == nil {
		return nil
	}
	if err := r.mesh.ReplaceTrack(old, replacement, outgoing); err != nil {
		return fmt.Errorf("replace track: %w", err)
	}
	return nil
}

// Close leaves the mesh and releases every participant. Safe to call more
// than once; OnEmpty does not run after Close.
func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.emptyOnce.Do(func() {})
	r.registry.Reset()
	err := r.mesh.Leave()

	logrus.WithFields(logrus.Fields{
		"function": "Room.Close",
		"channel":  r.channel,
	}).Info("Left call room")

	if err != nil {
		return fmt.Errorf("leave room %s: %w", r.channel, err)
	}
	return nil
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) broadcastPresence(peers ...string) error {
	r.mu.Lock()
	msg := PresenceMessage{Type: MessageUpdateUser, Channel: r.channel, User: r.local}
	r.mu.Unlock()

	payload, err := encodePresence(msg)
	if err != nil {
		return err
	}
	return r.mesh.Send(ActionPresence, payload, peers...)
}

func (r *Room) loop() {
	defer close(r.done)
	for ev := range r.mesh.Events() {
		if r.isClosed() {
			continue
		}
		switch ev.Type {
		case transport.PeerJoin:
			r.handleJoin(ev.Peer)
		case transport.PeerLeave:
			r.handleLeave(ev.Peer)
		case transport.PeerStream:
			r.handleStream(ev.Peer, ev.Stream)
		case transport.PeerTrack:
			r.handleTrack(ev.Peer, ev.Track)
		case transport.ActionMessage:
			r.handleAction(ev.Peer, ev.Action, ev.Payload)
		}
	}
}

func (r *Room) handleJoin(peer string) {
	r.mu.Lock()
	identity := r.local.Identity
	outgoing := r.outgoing
	var started time.Time
	if r.startedAt.IsZero() {
		r.startedAt = r.clock.Now()
		started = r.startedAt
	}
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Room.handleJoin",
		"channel":  r.channel,
		"peer":     peer,
	}).Info("Peer joined")

	if payload, err := encodeIdentity(identity); err == nil {
		r.send(ActionIdentitySync, payload, peer)
	}
	if err := r.broadcastPresence(peer); err != nil {
		r.warn("Room.handleJoin", peer, "Presence to new peer failed", err)
	}
	if outgoing != nil {
		if err := r.mesh.AddStream(outgoing, peer); err != nil {
			r.warn("Room.handleJoin", peer, "Publishing stream to new peer failed", err)
		}
	}
	r.sounds.Play(SoundJoined)

	if !started.IsZero() && r.onStarted != nil {
		r.onStarted(started)
	}
}

func (r *Room) handleLeave(peer string) {
	r.mu.Lock()
	identity := r.peers[peer]
	delete(r.peers, peer)
	delete(r.pendingStreams, peer)
	// A participant that rejoined on a new peer keeps its entry when the
	// old peer's leave arrives.
	stale := identity != "" && r.boundLocked(identity)
	removed := identity != "" && !stale
	if removed {
		delete(r.pendingPresence, identity)
		r.present = removeString(r.present, identity)
	}
	present := append([]string(nil), r.present...)
	r.mu.Unlock()

	if removed {
		r.registry.Delete(identity)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Room.handleLeave",
		"channel":  r.channel,
		"peer":     peer,
		"identity": identity,
		"stale":    stale,
	}).Info("Peer left")

	r.sounds.Play(SoundDisconnect)
	if removed && r.onPresent != nil {
		r.onPresent(present)
	}

	if r.Empty() {
		r.emptyOnce.Do(func() {
			logrus.WithFields(logrus.Fields{
				"function": "Room.handleLeave",
				"channel":  r.channel,
			}).Info("Room is empty")
			if r.onEmpty != nil {
				go r.onEmpty()
			}
		})
	}
}

func (r *Room) handleStream(peer string, stream *av.Stream) {
	if stream == nil {
		return
	}
	r.mu.Lock()
	identity := r.peers[peer]
	deafened := r.deafened
	if identity == "" {
		r.pendingStreams[peer] = stream
	}
	r.mu.Unlock()

	if deafened {
		stream.SetEnabled(av.KindAudio, false)
	}
	if identity == "" {
		logrus.WithFields(logrus.Fields{
			"function": "Room.handleStream",
			"peer":     peer,
		}).Debug("Holding stream until identity-sync")
		return
	}
	if err := r.registry.SetStream(identity, stream); err != nil {
		r.warn("Room.handleStream", peer, "Binding stream failed", err)
	}
}

func (r *Room) handleTrack(peer string, track *av.Track) {
	if track == nil {
		return
	}
	r.mu.Lock()
	deafened := r.deafened
	r.mu.Unlock()

	if deafened && track.Kind() == av.KindAudio {
		track.SetEnabled(false)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Room.handleTrack",
		"peer":     peer,
		"kind":     track.Kind().String(),
		"label":    track.Label(),
	}).Debug("Peer track changed")
}

func (r *Room) handleAction(peer, action string, payload []byte) {
	switch action {
	case ActionIdentitySync:
		identity, err := decodeIdentity(payload)
		if err != nil {
			r.warn("Room.handleAction", peer, "Dropping identity-sync", err)
			return
		}
		r.bindIdentity(peer, identity)
	case ActionPresence:
		msg, err := decodePresence(payload)
		if err != nil {
			r.warn("Room.handleAction", peer, "Dropping presence", err)
			return
		}
		r.applyPresence(peer, msg)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Room.handleAction",
			"peer":     peer,
			"action":   action,
		}).Debug("Unknown action")
	}
}

// boundLocked reports whether any peer is bound to identity.
func (r *Room) boundLocked(identity string) bool {
	for _, bound := range r.peers {
		if bound == identity {
			return true
		}
	}
	return false
}

func (r *Room) bindIdentity(peer, identity string) {
	r.mu.Lock()
	r.peers[peer] = identity
	added := !containsString(r.present, identity)
	if added {
		r.present = append(r.present, identity)
	}
	state, hasState := r.pendingPresence[identity]
	delete(r.pendingPresence, identity)
	stream := r.pendingStreams[peer]
	delete(r.pendingStreams, peer)
	present := append([]string(nil), r.present...)
	r.mu.Unlock()

	if !hasState {
		state = ParticipantState{Identity: identity}
	}
	exists := r.registry.Has(identity)
	r.registry.Create(identity, peer, state)
	if exists && hasState {
		_ = r.registry.Update(identity, state)
	}
	if stream != nil {
		if err := r.registry.SetStream(identity, stream); err != nil {
			r.warn("Room.bindIdentity", peer, "Binding held stream failed", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":      "Room.bindIdentity",
		"peer":          peer,
		"identity":      identity,
		"held_presence": hasState,
		"held_stream":   stream != nil,
	}).Debug("Identity bound")

	if added && r.onPresent != nil {
		r.onPresent(present)
	}
}

func (r *Room) applyPresence(peer string, msg PresenceMessage) {
	switch msg.Type {
	case MessageUpdateUser:
	case MessageNone:
		return
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Room.applyPresence",
			"peer":     peer,
			"type":     string(msg.Type),
		}).Debug("Unknown presence type")
		return
	}

	identity := msg.User.Identity
	r.mu.Lock()
	if identity == "" {
		identity = r.peers[peer]
	}
	if identity == "" {
		r.mu.Unlock()
		return
	}
	if !r.registry.Has(identity) {
		r.pendingPresence[identity] = msg.User
		r.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Room.applyPresence",
			"identity": identity,
		}).Debug("Holding presence until identity-sync")
		return
	}
	r.mu.Unlock()

	if err := r.registry.Update(identity, msg.User); err != nil {
		r.warn("Room.applyPresence", peer, "Presence update failed", err)
	}
}

func (r *Room) send(action string, payload []byte, peers ...string) {
	if err := r.mesh.Send(action, payload, peers...); err != nil {
		r.warn("Room.send", "", "Mesh send failed", err)
	}
}

func (r *Room) warn(function, peer, msg string, err error) {
	logrus.WithFields(logrus.Fields{
		"function": function,
		"channel":  r.channel,
		"peer":     peer,
		"error":    err.Error(),
	}).Warn(msg)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
