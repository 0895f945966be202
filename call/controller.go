package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/av/audio"
	"github.com/opd-ai/meshcall/config"
	"github.com/opd-ai/meshcall/invite"
	"github.com/opd-ai/meshcall/messaging"
	"github.com/opd-ai/meshcall/room"
	"github.com/opd-ai/meshcall/transport"
	"github.com/opd-ai/meshcall/transport/relay"
	"github.com/sirupsen/logrus"
)

// Options are the collaborators and settings of a Controller.
type Options struct {
	// Identity is the local participant identity, e.g. "did:key:z6Mk...".
	Identity    string
	DisplayName string

	Endpoints transport.EndpointFactory
	Mesh      transport.Mesh
	Devices   av.Devices

	// Messages receives call system messages. Nil disables them.
	Messages  messaging.Sender
	Formatter messaging.Formatter

	// Device is followed for mute, camera and deafen intents. Nil creates
	// a private set.
	Device *DeviceSignals
	Sink   room.Sink
	Sounds room.SoundPlayer

	Config config.Config
	Clock  clock.Clock

	// AutoListen opens the endpoint in New and again whenever a call ends
	// or fails to set up, so the controller stays reachable.
	AutoListen bool
}

// inboundCall is the most recent inbound connection that opened.
type inboundCall struct {
	channel string
	from    string
	conn    transport.Connection
}

// Controller owns the call session. Create one per process with New.
type Controller struct {
	identity    string
	displayName string
	endpoints   transport.EndpointFactory
	mesh        transport.Mesh
	devices     av.Devices
	messages    messaging.Sender
	formatter   messaging.Formatter
	sink        room.Sink
	sounds      room.SoundPlayer
	clock       clock.Clock
	cfg         config.Config
	inviteCfg   invite.Config
	pipelineCfg audio.PipelineConfig
	prober      *relay.Prober
	autoListen  bool

	signals     *Signals
	device      *DeviceSignals
	unsubscribe []func()

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	channel    string
	recipients []string
	options    DeviceOptions
	endpoint   transport.Endpoint
	local      *av.Stream
	pipeline   *audio.Pipeline
	screen     *av.Stream
	camera     *av.Track
	sharing    bool
	room       *room.Room
	incoming   []transport.Connection
	inbound    *inboundCall
	round      *invite.Round
	timers     []*clock.Timer
	generation uint64
	closed     bool
}

// New creates a controller and subscribes it to the device signals.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Identity == "":
		return nil, fmt.Errorf("%w: identity", ErrMissingCollaborator)
	case opts.Endpoints == nil:
		return nil, fmt.Errorf("%w: endpoint factory", ErrMissingCollaborator)
	case opts.Mesh == nil:
		return nil, fmt.Errorf("%w: mesh", ErrMissingCollaborator)
	case opts.Devices == nil:
		return nil, fmt.Errorf("%w: devices", ErrMissingCollaborator)
	}
	if opts.Formatter == nil {
		opts.Formatter = messaging.DefaultFormatter{}
	}
	if opts.Device == nil {
		opts.Device = NewDeviceSignals()
	}
	if opts.Sounds == nil {
		opts.Sounds = room.NoSounds{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Config.AppID == "" {
		opts.Config = config.Default()
	}

	pipelineCfg := audio.DefaultPipelineConfig()
	pipelineCfg.Clock = opts.Clock
	pipelineCfg.Hysteresis = opts.Config.SpeakingHysteresis
	pipelineCfg.SuppressionLevel = opts.Config.NoiseSuppression

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		identity:    opts.Identity,
		displayName: opts.DisplayName,
		endpoints:   opts.Endpoints,
		mesh:        opts.Mesh,
		devices:     opts.Devices,
		messages:    opts.Messages,
		formatter:   opts.Formatter,
		sink:        opts.Sink,
		sounds:      opts.Sounds,
		clock:       opts.Clock,
		cfg:         opts.Config,
		inviteCfg: invite.Config{
			MaxAttempts:    opts.Config.InviteMaxAttempts,
			RingWindow:     opts.Config.InviteRingWindow,
			RetryPause:     opts.Config.InviteRetryPause,
			ConnectTimeout: opts.Config.InviteConnectTimeout,
			Clock:          opts.Clock,
		},
		pipelineCfg: pipelineCfg,
		autoListen:  opts.AutoListen,
		signals:     NewSignals(),
		device:      opts.Device,
		ctx:         ctx,
		cancel:      cancel,
		options: DeviceOptions{
			VideoEnabled: opts.Device.CameraEnabled.Get(),
			Muted:        opts.Device.Muted.Get(),
			Deafened:     opts.Device.Deafened.Get(),
		},
	}
	if opts.Config.RelayProbe {
		c.prober = relay.NewProber(opts.Config.RelayProbeTimeout)
	}

	c.unsubscribe = []func(){
		opts.Device.Muted.Subscribe(c.ToggleMute),
		opts.Device.CameraEnabled.Subscribe(c.ToggleVideo),
		opts.Device.Deafened.Subscribe(c.ToggleDeafen),
	}

	if opts.AutoListen {
		if err := c.Listen(ctx, false); err != nil {
			for _, unsubscribe := range c.unsubscribe {
				unsubscribe()
			}
			cancel()
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "call.New",
		"identity":    opts.Identity,
		"relay_probe": opts.Config.RelayProbe,
	}).Info("Call controller created")

	return c, nil
}

// Signals returns the published signals.
func (c *Controller) Signals() *Signals {
	return c.signals
}

// Device returns the device signals the controller follows.
func (c *Controller) Device() *DeviceSignals {
	return c.device
}

// Identity returns the local participant identity.
func (c *Controller) Identity() string {
	return c.identity
}

// Options returns a copy of the local device state.
func (c *Controller) Options() DeviceOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.options
}

// InCall reports whether a room is joined.
func (c *Controller) InCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room != nil
}

// Room returns the joined room, or nil.
func (c *Controller) Room() *room.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Round returns the current invitation round, or nil.
func (c *Controller) Round() *invite.Round {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// Close leaves any call without an end message and stops following the
// device signals.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	for _, unsubscribe := range c.unsubscribe {
		unsubscribe()
	}
	c.LeaveCall(context.Background(), false)
	c.cancel()
	return nil
}

// PrepareCall records who to call and in which channel. The local identity
// is dropped from recipients. No I/O happens until StartCall.
func (c *Controller) PrepareCall(recipients []string, channel string, audioOnly bool) {
	filtered := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r != c.identity && r != "" {
			filtered = append(filtered, r)
		}
	}

	c.mu.Lock()
	c.channel = channel
	c.recipients = filtered
	c.options.VideoEnabled = !audioOnly
	c.options.AudioOnly = audioOnly
	c.options.Muted = false
	c.mu.Unlock()

	c.device.CameraEnabled.Set(!audioOnly)
	c.device.Muted.Set(false)

	logrus.WithFields(logrus.Fields{
		"function":   "Controller.PrepareCall",
		"channel":    channel,
		"recipients": len(filtered),
		"audio_only": audioOnly,
	}).Info("Call prepared")
}

// StartCall acquires local media and the endpoint, joins the room for the
// prepared channel, and with shouldDial rings every recipient and posts the
// call-started message. Any call already in progress is left first. On a
// setup failure every resource is released and the error returned.
func (c *Controller) StartCall(ctx context.Context, shouldDial bool) error {
	c.mu.Lock()
	channel := c.channel
	recipients := append([]string(nil), c.recipients...)
	c.mu.Unlock()

	if channel == "" {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.StartCall",
		}).Error("Calling not set up")
		return ErrNotPrepared
	}

	c.leaveRoom()

	if err := c.setup(ctx, channel); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.StartCall",
			"channel":  channel,
			"error":    err.Error(),
		}).Error("Error making call")
		c.clearResources()
		c.relisten()
		return fmt.Errorf("start call: %w", err)
	}

	if shouldDial {
		if err := c.InviteToCall(ctx, recipients); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.StartCall",
				"channel":  channel,
				"error":    err.Error(),
			}).Warn("Invitations not sent")
		}
		c.notify(ctx, channel, c.formatter.Started(c.clock.Now()))
	}

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.after(c.cfg.NoAnswerWindow, func() { c.noAnswer(gen) })

	c.signals.ActiveChannel.Set(channel)
	c.signals.ActiveCall.Set(&Pending{Channel: channel, Direction: Outbound})
	c.signals.ScreenVisible.Set(true)

	logrus.WithFields(logrus.Fields{
		"function": "Controller.StartCall",
		"channel":  channel,
		"dialing":  shouldDial,
	}).Info("Call started")

	return nil
}

// AcceptCall answers the most recent inbound call: it acknowledges over
// that connection, joins the room for its channel, and closes every other
// queued inbound connection.
func (c *Controller) AcceptCall(ctx context.Context, audioOnly bool) error {
	c.mu.Lock()
	in := c.inbound
	if in == nil {
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Controller.AcceptCall",
		}).Error("No call to accept")
		return ErrNoPendingCall
	}
	c.inbound = nil
	queued := c.incoming
	c.incoming = nil
	c.options.VideoEnabled = !audioOnly
	c.options.AudioOnly = audioOnly
	c.options.Muted = false
	c.mu.Unlock()

	c.device.CameraEnabled.Set(!audioOnly)
	c.device.Muted.Set(false)
	c.leaveRoom()

	c.mu.Lock()
	c.channel = in.channel
	c.mu.Unlock()

	if err := in.conn.Send(transport.AckToken); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.AcceptCall",
			"from":     in.from,
			"error":    err.Error(),
		}).Warn("Acknowledgement not delivered")
	}

	err := c.setup(ctx, in.channel)
	for _, conn := range queued {
		_ = conn.Close()
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.AcceptCall",
			"channel":  in.channel,
			"error":    err.Error(),
		}).Error("Error accepting call")
		c.clearResources()
		c.relisten()
		return fmt.Errorf("accept call: %w", err)
	}

	c.signals.PendingCall.Set(nil)
	c.signals.ActiveChannel.Set(in.channel)
	c.signals.ActiveCall.Set(&Pending{Channel: in.channel, Direction: Inbound, From: in.from})
	c.signals.ScreenVisible.Set(true)

	logrus.WithFields(logrus.Fields{
		"function": "Controller.AcceptCall",
		"channel":  in.channel,
		"from":     in.from,
		"closed":   len(queued),
	}).Info("Call accepted")

	return nil
}

// LeaveCall ends the call. With sendEndMessage and a joined room it posts
// "call ended" with the duration when anyone joined, or "missed call"
// otherwise. Every resource is released; calling it again is harmless.
func (c *Controller) LeaveCall(ctx context.Context, sendEndMessage bool) {
	c.signals.reset()

	c.mu.Lock()
	c.stopTimersLocked()
	channel := c.channel
	r := c.room
	c.mu.Unlock()

	if sendEndMessage && channel != "" && r != nil {
		if started := r.StartedAt(); !started.IsZero() {
			now := c.clock.Now()
			c.notify(ctx, channel, c.formatter.Ended(now, now.Sub(started)))
		} else {
			c.notify(ctx, channel, c.formatter.Missed())
		}
	}

	c.clearResources()

	c.signals.ActiveCall.Set(nil)
	c.signals.ScreenVisible.Set(false)
	c.signals.PendingCall.Set(nil)

	logrus.WithFields(logrus.Fields{
		"function": "Controller.LeaveCall",
		"channel":  channel,
	}).Info("Call ended and resources cleaned up")

	c.relisten()
}

// InviteToCall rings recipients for the current call, cancelling any round
// still in flight. Progress is reported through Signals.
func (c *Controller) InviteToCall(ctx context.Context, recipients []string) error {
	c.mu.Lock()
	inCall := c.room != nil
	channel := c.channel
	c.mu.Unlock()
	if !inCall {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.InviteToCall",
		}).Error("Not in a call")
		return ErrNotInCall
	}

	if err := c.Listen(ctx, false); err != nil {
		return fmt.Errorf("invite: %w", err)
	}

	c.mu.Lock()
	endpoint := c.endpoint
	previous := c.round
	c.round = nil
	c.mu.Unlock()
	if previous != nil {
		previous.Cancel()
	}

	md := transport.Metadata{
		Identity:      c.identity,
		DisplayName:   c.displayName,
		Channel:       channel,
		CallStartedAt: c.clock.Now(),
	}
	round := invite.Start(c.ctx, endpoint, recipients, md, c.inviteCfg, c.inviteHooks())

	c.mu.Lock()
	c.round = round
	c.mu.Unlock()
	return nil
}

func (c *Controller) inviteHooks() invite.Hooks {
	return invite.Hooks{
		OnConnected: func(_ string, at time.Time) {
			c.signals.CallStartedAt.Set(at)
		},
		OnAccepted: func(recipient string) {
			c.signals.TimedOut.Set(false)
			c.signals.Accepted.Update(func(list []string) []string { return appendUnique(list, recipient) })
		},
		OnDenied: func(recipient, reason string) {
			if reason == invite.ReasonCancelled {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function":  "Controller.inviteHooks",
				"recipient": recipient,
				"reason":    reason,
			}).Info("Recipient didn't accept")
			c.signals.Denied.Update(func(list []string) []string { return appendUnique(list, recipient) })
		},
		OnExhausted: func(recipient string) {
			logrus.WithFields(logrus.Fields{
				"function":  "Controller.inviteHooks",
				"recipient": recipient,
			}).Error("Max retries reached, connection failed")
		},
	}
}

// setup acquires local media, the endpoint, and the room, in that order.
func (c *Controller) setup(ctx context.Context, channel string) error {
	stream, err := c.LocalStream(ctx, false)
	if err != nil {
		return err
	}
	if err := c.Listen(ctx, false); err != nil {
		return err
	}
	return c.joinRoom(ctx, channel, stream)
}

func (c *Controller) joinRoom(ctx context.Context, channel string, outgoing *av.Stream) error {
	relays := c.cfg.RelayURLs
	if c.prober != nil {
		if healthy := c.prober.Probe(ctx, relays); len(healthy) > 0 {
			relays = healthy
		} else {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.joinRoom",
				"relays":   len(relays),
			}).Warn("No relay passed the probe, using the configured list")
		}
	}

	c.mu.Lock()
	gen := c.generation
	local := c.localStateLocked()
	c.mu.Unlock()

	r, err := room.Join(ctx, c.mesh, room.Options{
		Config: transport.RoomConfig{
			AppID:           c.cfg.AppID,
			RelayURLs:       relays,
			RelayRedundancy: c.cfg.RelayRedundancy,
		},
		Channel:   channel,
		Local:     local,
		Outgoing:  outgoing,
		Sink:      c.sink,
		Sounds:    c.sounds,
		Pipeline:  c.pipelineCfg,
		Clock:     c.clock,
		OnEmpty:   func() { c.roomEmpty(gen) },
		OnPresent: func(ids []string) { c.signals.Present.Set(ids) },
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	stale := c.generation != gen
	if !stale {
		c.room = r
	}
	c.mu.Unlock()
	if stale {
		_ = r.Close()
		return fmt.Errorf("join room %s: %w", channel, ErrNotInCall)
	}
	return nil
}

// leaveRoom drops the current room, its timers, and the invitation round
// without ending the session.
func (c *Controller) leaveRoom() {
	c.mu.Lock()
	c.generation++
	c.stopTimersLocked()
	r := c.room
	c.room = nil
	round := c.round
	c.round = nil
	c.mu.Unlock()

	if round != nil {
		round.Cancel()
	}
	if r != nil {
		if err := r.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.leaveRoom",
				"error":    err.Error(),
			}).Warn("Leaving previous room failed")
		}
	}
}

func (c *Controller) roomEmpty(gen uint64) {
	c.mu.Lock()
	current := c.generation == gen && c.room != nil
	c.mu.Unlock()
	if !current {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Controller.roomEmpty",
	}).Info("Everyone left, ending call")
	c.LeaveCall(c.ctx, true)
}

// noAnswer runs when the no-answer window elapses.
func (c *Controller) noAnswer(gen uint64) {
	c.mu.Lock()
	r := c.room
	current := c.generation == gen
	c.mu.Unlock()
	if !current || (r != nil && !r.Empty()) {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Controller.noAnswer",
	}).Debug("No one joined the call")

	c.after(c.cfg.EndCallFeedback, func() {
		c.mu.Lock()
		current := c.generation == gen
		c.mu.Unlock()
		if !current || len(c.signals.Accepted.Get()) > 0 {
			return
		}
		c.signals.TimedOut.Set(false)
		c.LeaveCall(c.ctx, true)
	})
	c.signals.TimedOut.Set(true)
}

// clearResources is the single release path for everything a call holds.
func (c *Controller) clearResources() {
	c.mu.Lock()
	c.generation++
	c.stopTimersLocked()
	c.channel = ""
	c.recipients = nil
	c.incoming = nil
	c.inbound = nil
	round, endpoint := c.round, c.endpoint
	screen, local, pipeline, r := c.screen, c.local, c.pipeline, c.room
	camera := c.camera
	c.round, c.endpoint = nil, nil
	c.screen, c.local, c.pipeline, c.room = nil, nil, nil, nil
	c.camera = nil
	c.sharing = false
	c.options.ScreenShare = false
	c.mu.Unlock()

	if round != nil {
		round.Cancel()
	}
	if endpoint != nil {
		if err := endpoint.Destroy(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.clearResources",
				"error":    err.Error(),
			}).Warn("Endpoint destroy failed")
		}
	}
	if screen != nil {
		screen.Stop()
	}
	if local != nil {
		local.Stop()
	}
	if camera != nil {
		camera.Stop()
	}
	if pipeline != nil {
		pipeline.Remove()
	}
	if r != nil {
		_ = r.Close()
	}
	c.device.ScreenShare.Set(false)
	c.signals.LocalMedia.Set(audio.Meta{})
}

func (c *Controller) notify(ctx context.Context, channel, text string) {
	if c.messages == nil {
		return
	}
	if err := c.messages.Send(ctx, channel, messaging.Lines(text), nil); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.notify",
			"channel":  channel,
			"error":    err.Error(),
		}).Warn("System message not sent")
	}
}

// after arms a tracked timer that LeaveCall stops.
func (c *Controller) after(d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, c.clock.AfterFunc(d, fn))
}

func (c *Controller) stopTimersLocked() {
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
}

func (c *Controller) localStateLocked() room.ParticipantState {
	return room.ParticipantState{
		Identity:           c.identity,
		DisplayName:        c.displayName,
		VideoEnabled:       c.options.VideoEnabled,
		AudioEnabled:       c.options.AudioEnabled(),
		ScreenShareEnabled: c.sharing,
		Deafened:           c.options.Deafened,
		Volume:             c.options.Volume,
	}
}
