package room

import (
	"encoding/json"
	"fmt"

	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/av/audio"
)

// Action names on the mesh.
const (
	ActionPresence     = "messages"
	ActionIdentitySync = "did_sync"
)

// MessageType tags a PresenceMessage.
type MessageType string

const (
	// MessageUpdateUser carries a participant's current state.
	MessageUpdateUser MessageType = "UPDATE_USER"
	// MessageNone is a no-op.
	MessageNone MessageType = "NONE"
)

// ParticipantState is what a peer announces about itself.
type ParticipantState struct {
	Identity           string   `json:"did"`
	DisplayName        string   `json:"username"`
	VideoEnabled       bool     `json:"videoEnabled"`
	AudioEnabled       bool     `json:"audioEnabled"`
	ScreenShareEnabled bool     `json:"screenShareEnabled"`
	Deafened           bool     `json:"isDeafened"`
	Volume             *float64 `json:"volume,omitempty"`
}

// PresenceMessage is the payload of the presence action.
type PresenceMessage struct {
	Type    MessageType      `json:"type"`
	Channel string           `json:"channel"`
	User    ParticipantState `json:"userInfo"`
}

func encodePresence(msg PresenceMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode presence: %w", err)
	}
	return data, nil
}

func decodePresence(data []byte) (PresenceMessage, error) {
	var msg PresenceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return PresenceMessage{}, fmt.Errorf("decode presence: %w", err)
	}
	return msg, nil
}

func encodeIdentity(identity string) ([]byte, error) {
	return json.Marshal(identity)
}

func decodeIdentity(data []byte) (string, error) {
	var identity string
	if err := json.Unmarshal(data, &identity); err != nil {
		return "", fmt.Errorf("decode identity: %w", err)
	}
	if identity == "" {
		return "", fmt.Errorf("decode identity: empty")
	}
	return identity, nil
}

// Participant is the local view of one remote party.
type Participant struct {
	State    ParticipantState
	PeerID   string
	Stream   *av.Stream
	Pipeline *audio.Pipeline
}
