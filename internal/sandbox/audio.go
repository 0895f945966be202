package sandbox

import (
	"context"
	"fmt"

	"github.com/opd-ai/meshcall/av/audio"
	"github.com/opd-ai/meshcall/call"
	"github.com/sirupsen/logrus"
)

// FeedAudio decodes Opus packets into the microphone track of a node in a
// call. The decoded PCM runs through the node's local pipeline and reaches
// every connected peer. It returns the number of samples written.
func (s *Sandbox) FeedAudio(ctx context.Context, identity string, packets [][]byte) (int, error) {
	node, err := s.Node(identity)
	if err != nil {
		return 0, err
	}
	if !node.Controller.InCall() {
		return 0, fmt.Errorf("feed audio %s: %w", identity, call.ErrNotInCall)
	}
	stream, err := node.Controller.LocalStream(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("feed audio %s: %w", identity, err)
	}
	tracks := stream.AudioTracks()
	if len(tracks) == 0 {
		return 0, fmt.Errorf("feed audio %s: %w: no microphone track", identity, ErrBadAudio)
	}

	node.mu.Lock()
	defer node.mu.Unlock()
	// A replaced local stream brings a new microphone track.
	if node.feeder == nil || node.feeder.Track() != tracks[0] {
		feeder, err := audio.NewOpusFeeder(tracks[0])
		if err != nil {
			return 0, fmt.Errorf("feed audio %s: %w", identity, err)
		}
		node.feeder = feeder
	}

	total := 0
	for i, packet := range packets {
		n, err := node.feeder.Feed(packet)
		if err != nil {
			return total, fmt.Errorf("feed audio %s: packet %d: %w: %v", identity, i, ErrBadAudio, err)
		}
		total += n
	}

	logrus.WithFields(logrus.Fields{
		"function": "Sandbox.FeedAudio",
		"identity": identity,
		"packets":  len(packets),
		"samples":  total,
	}).Debug("Audio fed")

	return total, nil
}
