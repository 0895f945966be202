package sandbox

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/av/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "did:key:alice"
	bob   = "did:key:bob"
)

func TestAddNode(t *testing.T) {
	_, h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	st := decodeStatus(t, rec)
	assert.Equal(t, alice, st.Identity)
	assert.False(t, st.InCall)
	assert.True(t, st.Devices.Camera)
	assert.Empty(t, st.Messages)

	rec = do(t, h, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	assert.Equal(t, []string{alice}, ids)
}

func TestAddNodeErrors(t *testing.T) {
	_, h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "duplicate", body: addNodeRequest{Identity: alice}, want: http.StatusConflict},
		{name: "missing identity", body: addNodeRequest{DisplayName: "x"}, want: http.StatusBadRequest},
		{name: "malformed body", body: "{not json", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/nodes", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestUnknownNode(t *testing.T) {
	_, h := newTestRouter(t)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nodes/"+bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/nodes/"+bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/nodes/"+bob+"/calls", startCallRequest{Channel: "c"}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPut, "/nodes/"+bob+"/devices/muted", deviceRequest{Enabled: true}).Code)
}

func TestCallLifecycle(t *testing.T) {
	_, h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: bob}).Code)

	rec := do(t, h, http.MethodPost, "/nodes/"+alice+"/calls", startCallRequest{
		Channel:    "general",
		Recipients: []string{bob, alice},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decodeStatus(t, rec)
	assert.True(t, st.InCall)
	assert.Equal(t, "general", st.ActiveChannel)
	require.NotNil(t, st.ActiveCall)
	assert.Equal(t, "outbound", st.ActiveCall.Direction)
	require.Len(t, st.Messages, 1)
	assert.True(t, strings.HasPrefix(st.Messages[0], "call started at "))

	assert.Eventually(t, func() bool {
		p := status(t, h, bob).PendingCall
		return p != nil && p.Channel == "general" && p.Direction == "inbound" && p.From == alice
	}, waitFor, tick)

	rec = do(t, h, http.MethodPost, "/nodes/"+bob+"/calls/accept", acceptCallRequest{AudioOnly: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "general", decodeStatus(t, rec).ActiveChannel)

	assert.Eventually(t, func() bool {
		st := status(t, h, alice)
		return contains(st.Accepted, bob) && contains(st.Present, bob)
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		for _, p := range status(t, h, alice).Participants {
			if p.Identity == bob {
				return !p.VideoEnabled && p.AudioEnabled
			}
		}
		return false
	}, waitFor, tick)

	rec = do(t, h, http.MethodDelete, "/nodes/"+bob+"/calls", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeStatus(t, rec).InCall)

	// The caller is left alone and tears down.
	assert.Eventually(t, func() bool {
		st := status(t, h, alice)
		return !st.InCall && st.ActiveChannel == ""
	}, waitFor, tick)
	messages := status(t, h, alice).Messages
	require.Len(t, messages, 2)
	assert.True(t, strings.HasPrefix(messages[1], "Call ended at "))
	// The mock clock never moved.
	assert.True(t, strings.HasSuffix(messages[1], "Duration: 0.00 seconds"))
}

func TestNodesRelistenAfterCall(t *testing.T) {
	sb, h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: bob}).Code)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/nodes/"+alice+"/calls", startCallRequest{
		Channel:    "first",
		Recipients: []string{bob},
	}).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/nodes/"+alice+"/calls", nil).Code)

	node, err := sb.Node(alice)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return node.Controller.Endpoint() != nil
	}, waitFor, tick)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/nodes/"+bob+"/calls", startCallRequest{
		Channel:    "second",
		Recipients: []string{alice},
	}).Code)
	assert.Eventually(t, func() bool {
		p := status(t, h, alice).PendingCall
		return p != nil && p.Channel == "second" && p.From == bob
	}, waitFor, tick)
}

func TestCallErrors(t *testing.T) {
	_, h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "start without channel", method: http.MethodPost, path: "/calls", body: startCallRequest{}, want: http.StatusBadRequest},
		{name: "accept without pending call", method: http.MethodPost, path: "/calls/accept", want: http.StatusConflict},
		{name: "invite outside a call", method: http.MethodPost, path: "/calls/invite", body: inviteRequest{Recipients: []string{bob}}, want: http.StatusConflict},
		{name: "invite nobody", method: http.MethodPost, path: "/calls/invite", body: inviteRequest{}, want: http.StatusBadRequest},
		{name: "share outside a call", method: http.MethodPut, path: "/devices/screen", body: deviceRequest{Enabled: true}, want: http.StatusConflict},
		{name: "unknown device", method: http.MethodPut, path: "/devices/speaker", body: deviceRequest{Enabled: true}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, "/nodes/"+alice+tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestSetDevices(t *testing.T) {
	_, h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)

	rec := do(t, h, http.MethodPut, "/nodes/"+alice+"/devices/muted", deviceRequest{Enabled: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeStatus(t, rec).Devices.Muted)

	rec = do(t, h, http.MethodPut, "/nodes/"+alice+"/devices/deafened", deviceRequest{Enabled: true})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeStatus(t, rec)
	assert.True(t, st.Devices.Deafened)
	assert.True(t, st.Devices.Muted)

	rec = do(t, h, http.MethodPut, "/nodes/"+alice+"/devices/camera", deviceRequest{Enabled: false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeStatus(t, rec).Devices.Camera)
}

func TestScreenShareOverHTTP(t *testing.T) {
	_, h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/nodes/"+alice+"/calls", startCallRequest{
		Channel: "solo",
		Dial:    new(bool),
	}).Code)

	rec := do(t, h, http.MethodPut, "/nodes/"+alice+"/devices/screen", deviceRequest{Enabled: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeStatus(t, rec).Devices.ScreenShare)

	rec = do(t, h, http.MethodPut, "/nodes/"+alice+"/devices/screen", deviceRequest{Enabled: false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeStatus(t, rec).Devices.ScreenShare)
}

func TestRemoveNode(t *testing.T) {
	sb, h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/nodes/"+alice, nil).Code)
	assert.Empty(t, sb.Identities())

	// The endpoint id is free again.
	assert.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)
}

func TestHealthz(t *testing.T) {
	_, h := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

// silkFrame is one 20 ms SILK wideband Opus packet encoded by libopus.
var silkFrame = []byte{
	0x48, 0x83, 0xca, 0xde, 0x8a, 0xe5, 0x67, 0xd5,
	0x1c, 0xac, 0xa2, 0x54, 0xfa, 0xff, 0xbf,
}

func TestFeedAudioReachesPeers(t *testing.T) {
	sb, h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: bob}).Code)

	rec := do(t, h, http.MethodPost, "/nodes/"+alice+"/audio", audioRequest{Packets: [][]byte{silkFrame}})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/nodes/"+alice+"/calls", startCallRequest{
		Channel:    "general",
		Recipients: []string{bob},
	}).Code)
	assert.Eventually(t, func() bool { return status(t, h, bob).PendingCall != nil }, waitFor, tick)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/nodes/"+bob+"/calls/accept", acceptCallRequest{}).Code)

	bobNode, err := sb.Node(bob)
	require.NoError(t, err)
	var remote *av.Track
	assert.Eventually(t, func() bool {
		entry, ok := bobNode.Sink.Get(alice)
		if !ok || entry.Stream == nil || len(entry.Stream.AudioTracks()) == 0 {
			return false
		}
		remote = entry.Stream.AudioTracks()[0]
		return true
	}, waitFor, tick)
	require.NotNil(t, remote)
	var heard atomic.Int64
	remote.AddSink(func(pcm []int16) { heard.Add(int64(len(pcm))) })

	rec = do(t, h, http.MethodPost, "/nodes/"+alice+"/audio", audioRequest{Packets: [][]byte{silkFrame, silkFrame}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp audioResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2*audio.OpusFrameSamples, resp.Samples)
	assert.Eventually(t, func() bool { return heard.Load() == 2*audio.OpusFrameSamples }, waitFor, tick)
}

func TestFeedAudioErrors(t *testing.T) {
	_, h := newTestRouter(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/nodes", addNodeRequest{Identity: alice}).Code)
	dial := false
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/nodes/"+alice+"/calls", startCallRequest{
		Channel: "general",
		Dial:    &dial,
	}).Code)

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{name: "unknown node", path: "/nodes/" + bob + "/audio", body: audioRequest{Packets: [][]byte{silkFrame}}, want: http.StatusNotFound},
		{name: "no packets", path: "/nodes/" + alice + "/audio", body: audioRequest{}, want: http.StatusBadRequest},
		{name: "not base64", path: "/nodes/" + alice + "/audio", body: `{"packets":["%%%"]}`, want: http.StatusBadRequest},
		{name: "celt packet", path: "/nodes/" + alice + "/audio", body: audioRequest{Packets: [][]byte{{0xf8, 0x01, 0x02}}}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
