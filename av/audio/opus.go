package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/opd-ai/meshcall/av"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// OpusFrameSamples is the size of one decoded frame: 20 ms of 48 kHz mono.
const OpusFrameSamples = 960

// OpusFeeder decodes Opus packets and writes the PCM to an audio track, so a
// transport carrying encoded audio can drive the track's pipeline.
//
// Only SILK-mode packets with a single frame decode; others are rejected.
type OpusFeeder struct {
	track   *av.Track
	decoder opus.Decoder
	out     []byte
	mu      sync.Mutex
}

// NewOpusFeeder creates a feeder writing into track.
func NewOpusFeeder(track *av.Track) (*OpusFeeder, error) {
	if track == nil || track.Kind() != av.KindAudio {
		return nil, av.ErrNotAudioTrack
	}
	return &OpusFeeder{
		track:   track,
		decoder: opus.NewDecoder(),
		out:     make([]byte, OpusFrameSamples*2),
	}, nil
}

// Track returns the track the feeder writes into.
func (f *OpusFeeder) Track() *av.Track {
	return f.track
}

// Feed decodes one packet, writes the PCM to the track, and returns the
// number of samples written.
func (f *OpusFeeder) Feed(packet []byte) (int, error) {
	if len(packet) == 0 {
		return 0, fmt.Errorf("empty opus packet")
	}

	f.mu.Lock()
	bandwidth, stereo, err := f.decoder.Decode(packet, f.out)
	if err != nil {
		f.mu.Unlock()
		return 0, fmt.Errorf("opus decode failed: %w", err)
	}
	pcm := make([]int16, OpusFrameSamples)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(f.out[i*2:]))
	}
	f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "OpusFeeder.Feed",
		"track_id":  f.track.ID(),
		"bandwidth": bandwidth.String(),
		"stereo":    stereo,
	}).Debug("Decoded opus packet")

	if err := f.track.WriteSamples(pcm); err != nil {
		return 0, err
	}
	return len(pcm), nil
}
