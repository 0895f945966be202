package av

import "errors"

// Sentinel errors for av package operations.
// These errors enable reliable error classification using errors.Is().

// Track errors.
var (
	// ErrTrackEnded indicates the track was stopped and accepts no more frames.
	ErrTrackEnded = errors.New("track ended")

	// ErrNotAudioTrack indicates PCM was written to a video track.
	ErrNotAudioTrack = errors.New("not an audio track")
)

// Device errors.
var (
	// ErrNoConstraints indicates a capture request asked for neither audio nor video.
	ErrNoConstraints = errors.New("capture requires audio or video")

	// ErrCaptureDenied indicates the capture device refused the request.
	ErrCaptureDenied = errors.New("capture denied")
)
