package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerID(t *testing.T) {
	tests := []struct {
		identity string
		want     string
	}{
		{"did:key:z6MkAlice", "z6MkAlice"},
		{"z6MkBob", "z6MkBob"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PeerID(tt.identity))
	}
}

func TestMetadataWireFormat(t *testing.T) {
	started := time.Date(2023, 11, 14, 22, 13, 20, 123000000, time.UTC)
	md := Metadata{
		Identity:      "did:key:alice",
		DisplayName:   "Alice",
		Channel:       "chat-2",
		CallStartedAt: started,
	}

	data, err := json.Marshal(md)
	require.NoError(t, err)
	assert.JSONEq(t, `{"did":"did:key:alice","username":"Alice","channel":"chat-2","timeCallStarted":"2023-11-14T22:13:20.123Z"}`, string(data))

	var decoded Metadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, started.Equal(decoded.CallStartedAt))
	assert.Equal(t, "chat-2", decoded.Channel)
}

func TestMetadataZeroStart(t *testing.T) {
	data, err := json.Marshal(Metadata{Identity: "did:key:bob", Channel: "c"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "timeCallStarted")

	var decoded Metadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.CallStartedAt.IsZero())
}

func TestMetadataRejectsBadTimestamp(t *testing.T) {
	var md Metadata
	err := json.Unmarshal([]byte(`{"did":"x","timeCallStarted":"yesterday"}`), &md)
	assert.Error(t, err)
}

func TestEventTypeStrings(t *testing.T) {
	assert.Equal(t, "open", ConnOpen.String())
	assert.Equal(t, "error", ConnError.String())
	assert.Equal(t, "peer_leave", PeerLeave.String())
	assert.Equal(t, "action", ActionMessage.String())
}
