// Package audio implements the per-stream voice analysis pipeline.
//
// Every live stream in a call, local or remote, gets one Pipeline. The
// pipeline taps the stream's audio tracks and runs each PCM frame through:
//
//	Track PCM → NoiseSuppressor → LevelAnalyser → VoiceDetector
//
// The detector reports voice start and stop edges. A start marks the owner as
// speaking immediately; a stop only takes effect after a short hysteresis
// window so that the natural gaps between words do not flicker the speaking
// indicator. Each change is reported as a Meta value to the callback given to
// NewPipeline.
//
// # Lifecycle
//
// Remove disconnects the pipeline from its tracks and releases the effect
// chain. It is idempotent, and a removed pipeline never reports again, even if
// a hysteresis timer was already due. Callers replacing a stream on the same
// participant must Remove the old pipeline before building the new one.
//
// # Encoded input
//
// Transports that deliver Opus packets instead of PCM can feed a track with
// OpusFeeder, which decodes using the pure Go pion/opus decoder.
//
// # Example
//
//	p, err := audio.NewPipeline("did:key:alice", stream, audio.DefaultPipelineConfig(),
//	    func(m audio.Meta) {
//	        fmt.Println("speaking:", m.Speaking, "muted:", m.Muted)
//	    })
//	if err != nil {
//	    return err
//	}
//	defer p.Remove()
package audio
