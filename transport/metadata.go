package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AckToken is the payload a callee sends on an inbound connection to accept
// the call. Any other payload has no meaning to the call engine.
const AckToken = "CALL_ACCEPT"

// identityPrefix is stripped from identities to form peer ids.
const identityPrefix = "did:key:"

// PeerID maps a call-level identity to its point-to-point peer id.
func PeerID(identity string) string {
	return strings.TrimPrefix(identity, identityPrefix)
}

// Metadata travels with a connection request so the callee can show who is
// calling and which conversation the call belongs to.
type Metadata struct {
	Identity      string    `json:"did"`
	DisplayName   string    `json:"username"`
	Channel       string    `json:"channel"`
	CallStartedAt time.Time `json:"timeCallStarted"`
}

// isoMillis is the timestamp layout on the wire: ISO 8601 UTC with
// millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type metadataWire struct {
	Identity      string `json:"did"`
	DisplayName   string `json:"username"`
	Channel       string `json:"channel"`
	CallStartedAt string `json:"timeCallStarted,omitempty"`
}

// MarshalJSON encodes the start time as an ISO 8601 string, zero omitted.
func (m Metadata) MarshalJSON() ([]byte, error) {
	w := metadataWire{
		Identity:    m.Identity,
		DisplayName: m.DisplayName,
		Channel:     m.Channel,
	}
	if !m.CallStartedAt.IsZero() {
		w.CallStartedAt = m.CallStartedAt.UTC().Format(isoMillis)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var w metadataWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Metadata{
		Identity:    w.Identity,
		DisplayName: w.DisplayName,
		Channel:     w.Channel,
	}
	if w.CallStartedAt != "" {
		started, err := time.Parse(time.RFC3339Nano, w.CallStartedAt)
		if err != nil {
			return fmt.Errorf("parse timeCallStarted: %w", err)
		}
		m.CallStartedAt = started
	}
	return nil
}
