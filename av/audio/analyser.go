package audio

import (
	"fmt"
	"math"
)

// SilenceDB is the level reported for digital silence.
const SilenceDB = -100.0

// LevelAnalyser tracks the loudness of a PCM signal over a sliding window.
//
// Each Push updates the window RMS and blends it into a smoothed level using
// the same time-constant semantics as a WebAudio AnalyserNode: a smoothing of
// 0 follows the input exactly, values close to 1 react slowly.
type LevelAnalyser struct {
	ring      []float64
	pos       int
	filled    int
	sumSq     float64
	smoothing float64
	smoothed  float64
}

// NewLevelAnalyser creates an analyser over windowSize samples.
func NewLevelAnalyser(windowSize int, smoothing float64) (*LevelAnalyser, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("analyser window must be positive: %d", windowSize)
	}
	if smoothing < 0 || smoothing >= 1 {
		return nil, fmt.Errorf("analyser smoothing must be in [0, 1): %f", smoothing)
	}
	return &LevelAnalyser{
		ring:      make([]float64, windowSize),
		smoothing: smoothing,
	}, nil
}

// Push adds samples to the window and returns the smoothed level in dBFS.
func (a *LevelAnalyser) Push(samples []int16) float64 {
	for _, s := range samples {
		v := float64(s) / 32768.0
		sq := v * v
		a.sumSq += sq - a.ring[a.pos]
		a.ring[a.pos] = sq
		a.pos = (a.pos + 1) % len(a.ring)
		if a.filled < len(a.ring) {
			a.filled++
		}
	}

	rms := 0.0
	if a.filled > 0 && a.sumSq > 0 {
		rms = math.Sqrt(a.sumSq / float64(a.filled))
	}
	a.smoothed = a.smoothing*a.smoothed + (1-a.smoothing)*rms
	return a.Level()
}

// Level returns the current smoothed level in dBFS, never below SilenceDB.
func (a *LevelAnalyser) Level() float64 {
	if a.smoothed <= 0 {
		return SilenceDB
	}
	db := 20 * math.Log10(a.smoothed)
	if db < SilenceDB {
		return SilenceDB
	}
	return db
}
