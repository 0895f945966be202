package audio

// Edge is a voice activity transition reported by VoiceDetector.
type Edge int

const (
	// EdgeNone means the activity state did not change.
	EdgeNone Edge = iota
	// EdgeStart means voice was detected after silence.
	EdgeStart
	// EdgeStop means silence followed voice.
	EdgeStop
)

// String returns a readable edge name.
func (e Edge) String() string {
	switch e {
	case EdgeStart:
		return "start"
	case EdgeStop:
		return "stop"
	default:
		return "none"
	}
}

// DetectorConfig tunes VoiceDetector.
type DetectorConfig struct {
	// NoiseCaptureFrames is how many levels are averaged into the ambient
	// noise estimate before detection begins.
	NoiseCaptureFrames int
	// MarginDB is added to the ambient estimate to form the threshold.
	MarginDB float64
	// MinThresholdDB and MaxThresholdDB clamp the threshold.
	MinThresholdDB float64
	MaxThresholdDB float64
}

// DefaultDetectorConfig returns thresholds suited to speech over a headset
// or laptop microphone.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		NoiseCaptureFrames: 10,
		MarginDB:           12,
		MinThresholdDB:     -60,
		MaxThresholdDB:     -25,
	}
}

// VoiceDetector turns a stream of levels into voice start/stop edges.
// It first listens to the ambient noise, then reports voice whenever the
// level exceeds the ambient estimate by the configured margin.
type VoiceDetector struct {
	cfg       DetectorConfig
	captured  int
	noiseSum  float64
	threshold float64
	active    bool
}

// NewVoiceDetector creates a detector. With NoiseCaptureFrames <= 0 the
// threshold starts at MinThresholdDB.
func NewVoiceDetector(cfg DetectorConfig) *VoiceDetector {
	d := &VoiceDetector{cfg: cfg}
	if cfg.NoiseCaptureFrames <= 0 {
		d.threshold = cfg.MinThresholdDB
	}
	return d
}

// Calibrated reports whether ambient noise capture is finished.
func (d *VoiceDetector) Calibrated() bool {
	return d.captured >= d.cfg.NoiseCaptureFrames
}

// Threshold returns the current detection threshold in dBFS.
func (d *VoiceDetector) Threshold() float64 {
	return d.threshold
}

// Active reports whether voice is currently detected.
func (d *VoiceDetector) Active() bool {
	return d.active
}

// Feed consumes one level reading and returns the resulting edge.
func (d *VoiceDetector) Feed(levelDB float64) Edge {
	if !d.Calibrated() {
		d.noiseSum += levelDB
		d.captured++
		if d.Calibrated() {
			d.threshold = d.clamp(d.noiseSum/float64(d.captured) + d.cfg.MarginDB)
		}
		return EdgeNone
	}

	voice := levelDB > d.threshold
	switch {
	case voice && !d.active:
		d.active = true
		return EdgeStart
	case !voice && d.active:
		d.active = false
		return EdgeStop
	default:
		return EdgeNone
	}
}

func (d *VoiceDetector) clamp(db float64) float64 {
	if db < d.cfg.MinThresholdDB {
		return d.cfg.MinThresholdDB
	}
	if db > d.cfg.MaxThresholdDB {
		return d.cfg.MaxThresholdDB
	}
	return db
}
