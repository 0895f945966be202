package av

// Kind identifies the media carried by a track.
type Kind string

const (
	// KindAudio marks a microphone or remote audio track.
	KindAudio Kind = "audio"
	// KindVideo marks a camera, screen, or remote video track.
	KindVideo Kind = "video"
)

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// SampleSink receives the PCM frames written to an audio track.
// Sinks must not retain the slice after returning.
type SampleSink func(pcm []int16)

// Constraints selects which kinds of media a capture request should produce.
type Constraints struct {
	Audio bool
	Video bool
}
