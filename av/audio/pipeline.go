package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/opd-ai/meshcall/av"
	"github.com/sirupsen/logrus"
)

// Meta is the speaking indicator state derived for a stream's owner.
type Meta struct {
	// Muted is true when any audio track is disabled or ended.
	Muted bool
	// Speaking is true while voice is detected, including the hysteresis
	// window after the last detected word.
	Speaking bool
}

// MetaFunc receives every Meta recomputation.
type MetaFunc func(Meta)

// PipelineConfig tunes a Pipeline.
type PipelineConfig struct {
	// Clock drives the hysteresis timer. Nil means the wall clock.
	Clock clock.Clock
	// Hysteresis delays a voice stop before speaking turns false.
	Hysteresis time.Duration
	// SuppressionLevel is the noise suppressor strength in [0, 1].
	SuppressionLevel float64
	// FrameSize is the noise suppressor FFT size.
	FrameSize int
	// Window is the analyser window in samples.
	Window int
	// Smoothing is the analyser time constant.
	Smoothing float64
	// Detector tunes voice activity detection.
	Detector DetectorConfig
}

// DefaultPipelineConfig returns the production pipeline settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Clock:            clock.New(),
		Hysteresis:       200 * time.Millisecond,
		SuppressionLevel: 0.5,
		FrameSize:        512,
		Window:           512,
		Smoothing:        0.1,
		Detector:         DefaultDetectorConfig(),
	}
}

// Pipeline analyses one stream's audio and reports speaking/muted changes.
type Pipeline struct {
	owner  string
	stream *av.Stream
	cfg    PipelineConfig
	onMeta MetaFunc

	chain    *EffectChain
	analyser *LevelAnalyser
	detector *VoiceDetector
	detach   []func()

	speaking  bool
	stopTimer *clock.Timer
	stopGen   uint64
	removed   bool

	mu sync.Mutex
}

// NewPipeline builds the analysis graph over every audio track of stream and
// starts listening. onMeta may be nil.
func NewPipeline(owner string, stream *av.Stream, cfg PipelineConfig, onMeta MetaFunc) (*Pipeline, error) {
	if stream == nil {
		return nil, fmt.Errorf("pipeline for %s: nil stream", owner)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	suppressor, err := NewNoiseSuppressor(cfg.SuppressionLevel, cfg.FrameSize)
	if err != nil {
		return nil, fmt.Errorf("pipeline for %s: %w", owner, err)
	}
	analyser, err := NewLevelAnalyser(cfg.Window, cfg.Smoothing)
	if err != nil {
		return nil, fmt.Errorf("pipeline for %s: %w", owner, err)
	}

	p := &Pipeline{
		owner:    owner,
		stream:   stream,
		cfg:      cfg,
		onMeta:   onMeta,
		chain:    NewEffectChain(suppressor),
		analyser: analyser,
		detector: NewVoiceDetector(cfg.Detector),
	}

	tracks := stream.AudioTracks()
	for _, track := range tracks {
		p.detach = append(p.detach, track.AddSink(p.process))
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewPipeline",
		"owner":        owner,
		"stream_id":    stream.ID(),
		"audio_tracks": len(tracks),
	}).Debug("Audio pipeline attached")

	return p, nil
}

// Owner returns the identity the pipeline reports for.
func (p *Pipeline) Owner() string {
	return p.owner
}

// Stream returns the analysed stream.
func (p *Pipeline) Stream() *av.Stream {
	return p.stream
}

// Meta returns the current indicator state.
func (p *Pipeline) Meta() Meta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metaLocked()
}

// Speaking reports whether the owner is currently considered speaking.
func (p *Pipeline) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// Removed reports whether Remove has been called.
func (p *Pipeline) Removed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removed
}

// Refresh re-reports the current state, used after track enablement changes.
func (p *Pipeline) Refresh() {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return
	}
	meta := p.metaLocked()
	p.mu.Unlock()
	p.emit(meta)
}

// Remove disconnects the graph from the stream and stops any pending timer.
// Safe to call more than once.
func (p *Pipeline) Remove() {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return
	}
	p.removed = true
	if p.stopTimer != nil {
		p.stopTimer.Stop()
		p.stopTimer = nil
	}
	for _, detach := range p.detach {
		detach()
	}
	p.detach = nil
	err := p.chain.Close()
	p.mu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.Remove",
			"owner":    p.owner,
			"error":    err.Error(),
		}).Warn("Effect chain did not close cleanly")
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Pipeline.Remove",
		"owner":     p.owner,
		"stream_id": p.stream.ID(),
	}).Debug("Audio pipeline removed")
}

func (p *Pipeline) process(pcm []int16) {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return
	}
	cleaned, err := p.chain.Process(append([]int16(nil), pcm...))
	if err != nil {
		p.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.process",
			"owner":    p.owner,
			"error":    err.Error(),
		}).Debug("Dropping frame")
		return
	}
	edge := p.detector.Feed(p.analyser.Push(cleaned))
	p.mu.Unlock()

	switch edge {
	case EdgeStart:
		p.voiceStart()
	case EdgeStop:
		p.voiceStop()
	}
}

func (p *Pipeline) voiceStart() {
	p.mu.Lock()
	if p.removed {
		p.mu.Unlock()
		return
	}
	if p.stopTimer != nil {
		p.stopTimer.Stop()
		p.stopTimer = nil
	}
	p.stopGen++
	p.speaking = true
	meta := p.metaLocked()
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Pipeline.voiceStart",
		"owner":    p.owner,
	}).Debug("Voice detected")

	p.emit(meta)
}

func (p *Pipeline) voiceStop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed {
		return
	}
	if p.stopTimer != nil {
		p.stopTimer.Stop()
	}
	p.stopGen++
	gen := p.stopGen
	p.stopTimer = p.cfg.Clock.AfterFunc(p.cfg.Hysteresis, func() {
		p.mu.Lock()
		// A voice start or a newer stop after this timer was armed wins.
		if p.removed || gen != p.stopGen {
			p.mu.Unlock()
			return
		}
		p.stopTimer = nil
		p.speaking = false
		meta := p.metaLocked()
		p.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "Pipeline.voiceStop",
			"owner":    p.owner,
		}).Debug("Voice stopped")

		p.emit(meta)
	})
}

func (p *Pipeline) metaLocked() Meta {
	muted := false
	for _, track := range p.stream.AudioTracks() {
		if !track.Enabled() || track.Ended() {
			muted = true
			break
		}
	}
	return Meta{Muted: muted, Speaking: p.speaking}
}

func (p *Pipeline) emit(meta Meta) {
	if p.onMeta != nil {
		p.onMeta(meta)
	}
}
