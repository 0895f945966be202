package audio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// AudioEffect processes PCM frames. Effects may modify the input slice or
// return a new one; callers must use the returned slice.
type AudioEffect interface {
	Process(samples []int16) ([]int16, error)
	Name() string
	Close() error
}

// EffectChain runs effects in insertion order. Processing stops at the first
// failing effect.
type EffectChain struct {
	effects []AudioEffect
}

// NewEffectChain creates a chain holding the given effects.
func NewEffectChain(effects ...AudioEffect) *EffectChain {
	return &EffectChain{effects: effects}
}

// Add appends an effect to the end of the chain.
func (c *EffectChain) Add(effect AudioEffect) {
	c.effects = append(c.effects, effect)
}

// Len returns the number of effects in the chain.
func (c *EffectChain) Len() int {
	return len(c.effects)
}

// Process applies every effect in order.
func (c *EffectChain) Process(samples []int16) ([]int16, error) {
	out := samples
	for i, effect := range c.effects {
		processed, err := effect.Process(out)
		if err != nil {
			return nil, fmt.Errorf("effect %d (%s) failed: %w", i, effect.Name(), err)
		}
		out = processed
	}
	return out, nil
}

// Close closes every effect and empties the chain. All effects are closed
// even if some fail; the first error is returned.
func (c *EffectChain) Close() error {
	var first error
	for _, effect := range c.effects {
		if err := effect.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", effect.Name(), err)
		}
	}
	c.effects = nil
	return first
}

const (
	// noiseLearningFrames is how many frames feed the initial noise floor.
	noiseLearningFrames = 10
	// noiseFloorSmoothing weights the running floor against each new frame.
	noiseFloorSmoothing = 0.8
	// overSubtraction scales the floor removed from each bin.
	overSubtraction = 2.0
	// spectralFloorRatio bounds how far a bin may be attenuated, limiting
	// musical-noise artifacts.
	spectralFloorRatio = 0.1
	// hannOverlapGain is the summed gain of a squared Hann window at 50%
	// overlap; output is divided by it to restore unity gain.
	hannOverlapGain = 1.5
)

// NoiseSuppressor removes stationary background noise with spectral
// subtraction.
//
// The first frames it sees are assumed to be background and are averaged
// into a per-bin noise floor. After that, each frame is windowed, transformed,
// has the scaled floor subtracted from every bin, and is reconstructed with
// 50% overlap-add.
type NoiseSuppressor struct {
	level     float64
	frameSize int
	hop       int

	window   []float64
	floor    []float64
	spectrum []complex128
	learned  int
}

// NewNoiseSuppressor creates a suppressor. level is the suppression strength
// in [0, 1]; frameSize must be a power of two between 64 and 4096.
func NewNoiseSuppressor(level float64, frameSize int) (*NoiseSuppressor, error) {
	if level < 0 || level > 1 {
		return nil, fmt.Errorf("suppression level must be between 0.0 and 1.0: %f", level)
	}
	if frameSize < 64 || frameSize > 4096 || frameSize&(frameSize-1) != 0 {
		return nil, fmt.Errorf("frame size must be power of 2 between 64 and 4096: %d", frameSize)
	}

	window := make([]float64, frameSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(frameSize-1)))
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewNoiseSuppressor",
		"level":      level,
		"frame_size": frameSize,
	}).Debug("Noise suppressor created")

	return &NoiseSuppressor{
		level:     level,
		frameSize: frameSize,
		hop:       frameSize / 2,
		window:    window,
		floor:     make([]float64, frameSize/2+1),
		spectrum:  make([]complex128, frameSize),
	}, nil
}

// Name identifies the effect in chain errors.
func (n *NoiseSuppressor) Name() string {
	return "NoiseSuppressor"
}

// Learned reports whether the noise floor estimate is complete.
func (n *NoiseSuppressor) Learned() bool {
	return n.learned >= noiseLearningFrames
}

// Process returns a new, noise-suppressed copy of samples.
func (n *NoiseSuppressor) Process(samples []int16) ([]int16, error) {
	if len(samples) == 0 {
		return samples, nil
	}
	if n.spectrum == nil {
		return nil, fmt.Errorf("noise suppressor closed")
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s) / 32768.0
	}

	acc := make([]float64, len(in))
	frame := make([]float64, n.frameSize)
	for pos := 0; pos < len(in); pos += n.hop {
		for i := range frame {
			frame[i] = 0
		}
		end := pos + n.frameSize
		if end > len(in) {
			end = len(in)
		}
		copy(frame, in[pos:end])

		out := n.processFrame(frame)
		for i, v := range out {
			if pos+i >= len(acc) {
				break
			}
			acc[pos+i] += v
		}
	}

	result := make([]int16, len(acc))
	for i, v := range acc {
		v /= hannOverlapGain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		result[i] = int16(v * 32767)
	}
	return result, nil
}

func (n *NoiseSuppressor) processFrame(frame []float64) []float64 {
	for i := range n.spectrum {
		n.spectrum[i] = complex(frame[i]*n.window[i], 0)
	}
	fft(n.spectrum)

	bins := n.frameSize/2 + 1
	magnitude := make([]float64, bins)
	for i := 0; i < bins; i++ {
		re, im := real(n.spectrum[i]), imag(n.spectrum[i])
		magnitude[i] = math.Sqrt(re*re + im*im)
	}

	if !n.Learned() {
		n.learn(magnitude)
	} else {
		n.subtract(magnitude)
	}

	ifft(n.spectrum)
	out := make([]float64, n.frameSize)
	for i := range out {
		out[i] = real(n.spectrum[i]) * n.window[i]
	}
	return out
}

func (n *NoiseSuppressor) learn(magnitude []float64) {
	for i := range n.floor {
		if n.learned == 0 {
			n.floor[i] = magnitude[i]
			continue
		}
		n.floor[i] = noiseFloorSmoothing*n.floor[i] + (1-noiseFloorSmoothing)*magnitude[i]
	}
	n.learned++
	if n.Learned() {
		logrus.WithFields(logrus.Fields{
			"function": "NoiseSuppressor.learn",
			"frames":   n.learned,
		}).Debug("Noise floor estimation completed")
	}
}

func (n *NoiseSuppressor) subtract(magnitude []float64) {
	half := n.frameSize / 2
	for i, mag := range magnitude {
		if mag == 0 {
			continue
		}
		reduced := mag - overSubtraction*n.level*n.floor[i]
		if minimum := spectralFloorRatio * mag; reduced < minimum {
			reduced = minimum
		}
		ratio := complex(reduced/mag, 0)
		n.spectrum[i] *= ratio
		if i > 0 && i < half {
			n.spectrum[n.frameSize-i] *= ratio
		}
	}
}

// Close drops the working buffers. Process fails afterwards.
func (n *NoiseSuppressor) Close() error {
	n.window = nil
	n.floor = nil
	n.spectrum = nil
	return nil
}

// fft is an in-place radix-2 Cooley-Tukey transform; len(data) must be a
// power of two.
func fft(data []complex128) {
	n := len(data)
	if n <= 1 {
		return
	}

	for i, j := 0, 0; i < n; i++ {
		if j > i {
			data[i], data[j] = data[j], data[i]
		}
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := 2 * math.Pi / float64(size)
		for i := 0; i < n; i += size {
			for k := 0; k < half; k++ {
				w := complex(math.Cos(float64(k)*step), -math.Sin(float64(k)*step))
				u := data[i+k]
				v := data[i+k+half] * w
				data[i+k] = u + v
				data[i+k+half] = u - v
			}
		}
	}
}

// ifft inverts fft using the conjugation identity.
func ifft(data []complex128) {
	for i := range data {
		data[i] = complex(real(data[i]), -imag(data[i]))
	}
	fft(data)
	scale := 1 / float64(len(data))
	for i := range data {
		data[i] = complex(real(data[i])*scale, -imag(data[i])*scale)
	}
}
