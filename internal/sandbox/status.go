package sandbox

import (
	"time"

	"github.com/opd-ai/meshcall/call"
)

// PendingStatus is the JSON view of a ringing or active call.
type PendingStatus struct {
	Channel   string `json:"channel"`
	Direction string `json:"direction"`
	From      string `json:"from,omitempty"`
}

// DeviceStatus is the JSON view of a node's device intents.
type DeviceStatus struct {
	Muted       bool `json:"muted"`
	Camera      bool `json:"camera"`
	Deafened    bool `json:"deafened"`
	ScreenShare bool `json:"screenShare"`
}

// ParticipantStatus is what a node renders for one remote participant.
type ParticipantStatus struct {
	Identity     string `json:"did"`
	DisplayName  string `json:"username"`
	VideoEnabled bool   `json:"videoEnabled"`
	AudioEnabled bool   `json:"audioEnabled"`
	ScreenShare  bool   `json:"screenShareEnabled"`
	Deafened     bool   `json:"isDeafened"`
	HasStream    bool   `json:"hasStream"`
	Speaking     bool   `json:"speaking"`
}

// Status is a point-in-time snapshot of a node's signals.
type Status struct {
	Identity         string              `json:"identity"`
	ActiveChannel    string              `json:"activeChannel"`
	InCall           bool                `json:"inCall"`
	ConnectionOpened bool                `json:"connectionOpened"`
	TimedOut         bool                `json:"timedOut"`
	ScreenVisible    bool                `json:"screenVisible"`
	CallStartedAt    *time.Time          `json:"callStartedAt,omitempty"`
	PendingCall      *PendingStatus      `json:"pendingCall,omitempty"`
	ActiveCall       *PendingStatus      `json:"activeCall,omitempty"`
	Accepted         []string            `json:"accepted"`
	Denied           []string            `json:"denied"`
	Present          []string            `json:"present"`
	Devices          DeviceStatus        `json:"devices"`
	Participants     []ParticipantStatus `json:"participants"`
	Messages         []string            `json:"messages"`
}

// Status snapshots the node.
func (n *Node) Status() Status {
	signals := n.Controller.Signals()
	device := n.Controller.Device()

	st := Status{
		Identity:         n.Identity,
		ActiveChannel:    signals.ActiveChannel.Get(),
		InCall:           n.Controller.InCall(),
		ConnectionOpened: signals.ConnectionOpened.Get(),
		TimedOut:         signals.TimedOut.Get(),
		ScreenVisible:    signals.ScreenVisible.Get(),
		PendingCall:      pendingStatus(signals.PendingCall.Get()),
		ActiveCall:       pendingStatus(signals.ActiveCall.Get()),
		Accepted:         nonNil(signals.Accepted.Get()),
		Denied:           nonNil(signals.Denied.Get()),
		Present:          nonNil(signals.Present.Get()),
		Devices: DeviceStatus{
			Muted:       device.Muted.Get(),
			Camera:      device.CameraEnabled.Get(),
			Deafened:    device.Deafened.Get(),
			ScreenShare: device.ScreenShare.Get(),
		},
		Participants: []ParticipantStatus{},
		Messages:     []string{},
	}
	if at := signals.CallStartedAt.Get(); !at.IsZero() {
		st.CallStartedAt = &at
	}

	for _, id := range n.Sink.Identities() {
		entry, ok := n.Sink.Get(id)
		if !ok {
			continue
		}
		st.Participants = append(st.Participants, ParticipantStatus{
			Identity:     id,
			DisplayName:  entry.State.DisplayName,
			VideoEnabled: entry.State.VideoEnabled,
			AudioEnabled: entry.State.AudioEnabled,
			ScreenShare:  entry.State.ScreenShareEnabled,
			Deafened:     entry.State.Deafened,
			HasStream:    entry.Stream != nil,
			Speaking:     entry.Meta.Speaking,
		})
	}

	for _, m := range n.Outbox.Messages() {
		st.Messages = append(st.Messages, m.Lines...)
	}

	return st
}

func pendingStatus(p *call.Pending) *PendingStatus {
	if p == nil {
		return nil
	}
	return &PendingStatus{
		Channel:   p.Channel,
		Direction: p.Direction.String(),
		From:      p.From,
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
