package av

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Devices is the boundary to local capture hardware.
type Devices interface {
	// UserMedia captures microphone and/or camera tracks.
	UserMedia(ctx context.Context, c Constraints) (*Stream, error)
	// DisplayMedia captures the screen as a video track, plus system audio
	// when the platform supports it.
	DisplayMedia(ctx context.Context) (*Stream, error)
}

// StaticDevices produces tracks without touching capture hardware.
//
// Setting UserMediaErr or DisplayMediaErr makes the matching capture fail,
// which is how tests and the sandbox simulate a denied permission prompt.
type StaticDevices struct {
	UserMediaErr    error
	DisplayMediaErr error

	captured []*Stream
	mu       sync.Mutex
}

// NewStaticDevices creates a device source with no failures configured.
func NewStaticDevices() *StaticDevices {
	return &StaticDevices{}
}

// UserMedia returns a fresh stream with one track per requested kind.
func (d *StaticDevices) UserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, ErrNoConstraints
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.UserMediaErr != nil {
		return nil, fmt.Errorf("user media: %w", d.UserMediaErr)
	}

	var tracks []*Track
	if c.Audio {
		tracks = append(tracks, NewTrack(KindAudio, "microphone"))
	}
	if c.Video {
		tracks = append(tracks, NewTrack(KindVideo, "camera"))
	}
	stream := NewStream(tracks...)
	d.captured = append(d.captured, stream)

	logrus.WithFields(logrus.Fields{
		"function":  "StaticDevices.UserMedia",
		"stream_id": stream.ID(),
		"audio":     c.Audio,
		"video":     c.Video,
	}).Debug("Captured user media")

	return stream, nil
}

// DisplayMedia returns a fresh stream holding one screen video track.
func (d *StaticDevices) DisplayMedia(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DisplayMediaErr != nil {
		return nil, fmt.Errorf("display media: %w", d.DisplayMediaErr)
	}

	stream := NewStream(NewTrack(KindVideo, "screen"))
	d.captured = append(d.captured, stream)

	logrus.WithFields(logrus.Fields{
		"function":  "StaticDevices.DisplayMedia",
		"stream_id": stream.ID(),
	}).Debug("Captured display media")

	return stream, nil
}

// Captured returns every stream handed out so far, oldest first.
func (d *StaticDevices) Captured() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Stream, len(d.captured))
	copy(out, d.captured)
	return out
}
