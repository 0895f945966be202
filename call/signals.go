package call

import (
	"time"

	"github.com/opd-ai/meshcall/av/audio"
	"github.com/opd-ai/meshcall/observe"
)

// Direction tells who dialed.
type Direction int

const (
	// Outbound calls were started locally.
	Outbound Direction = iota
	// Inbound calls were dialed by a peer.
	Inbound
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// Pending describes a ringing or active call.
type Pending struct {
	Channel   string
	Direction Direction
	// From is the caller's identity for inbound calls.
	From string
}

// Signals is the read-only state the controller publishes. Consumers
// subscribe; only the controller sets values.
type Signals struct {
	// Denied lists invitees who declined or dropped the ring.
	Denied *observe.Value[[]string]
	// Accepted lists invitees who acknowledged.
	Accepted *observe.Value[[]string]
	// ConnectionOpened is true while an inbound caller's connection is open.
	ConnectionOpened *observe.Value[bool]
	// CallStartedAt is when the ringing call started.
	CallStartedAt *observe.Value[time.Time]
	// ActiveChannel is the channel of the call in progress, or "".
	ActiveChannel *observe.Value[string]
	// TimedOut is raised when nobody answered within the no-answer window.
	TimedOut *observe.Value[bool]
	// ScreenVisible is true while the call screen should be shown.
	ScreenVisible *observe.Value[bool]
	// PendingCall is the inbound call waiting to be accepted.
	PendingCall *observe.Value[*Pending]
	// ActiveCall is the call in progress.
	ActiveCall *observe.Value[*Pending]
	// Present lists the identities currently in the room.
	Present *observe.Value[[]string]
	// LocalMedia is the speaking indicator of the local microphone.
	LocalMedia *observe.Value[audio.Meta]
}

// NewSignals creates signals holding the idle baseline.
func NewSignals() *Signals {
	return &Signals{
		Denied:           observe.New[[]string](nil),
		Accepted:         observe.New[[]string](nil),
		ConnectionOpened: observe.NewComparable(false),
		CallStartedAt:    observe.NewComparable(time.Time{}),
		ActiveChannel:    observe.NewComparable(""),
		TimedOut:         observe.NewComparable(false),
		ScreenVisible:    observe.NewComparable(false),
		PendingCall:      observe.New[*Pending](nil),
		ActiveCall:       observe.New[*Pending](nil),
		Present:          observe.New[[]string](nil),
		LocalMedia:       observe.NewComparable(audio.Meta{}),
	}
}

func (s *Signals) reset() {
	s.ActiveChannel.Set("")
	s.CallStartedAt.Set(time.Time{})
	s.Denied.Set(nil)
	s.TimedOut.Set(false)
	s.ConnectionOpened.Set(false)
	s.Accepted.Set(nil)
	s.Present.Set(nil)
}

// DeviceSignals are the externally owned device intents the controller
// follows.
type DeviceSignals struct {
	Muted         *observe.Value[bool]
	CameraEnabled *observe.Value[bool]
	Deafened      *observe.Value[bool]
	// ScreenShare mirrors whether a share is live; the controller writes it.
	ScreenShare *observe.Value[bool]
}

// NewDeviceSignals creates device signals with the camera on and everything
// else off.
func NewDeviceSignals() *DeviceSignals {
	return &DeviceSignals{
		Muted:         observe.NewComparable(false),
		CameraEnabled: observe.NewComparable(true),
		Deafened:      observe.NewComparable(false),
		ScreenShare:   observe.NewComparable(false),
	}
}

// DeviceOptions is the controller's local device state.
type DeviceOptions struct {
	VideoEnabled bool
	Muted        bool
	Deafened     bool
	ScreenShare  bool
	AudioOnly    bool
	Volume       *float64
}

// AudioEnabled reports whether the microphone should be live.
func (o DeviceOptions) AudioEnabled() bool {
	return !o.Muted && !o.Deafened
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(append([]string(nil), list...), s)
}
