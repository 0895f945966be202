// Package av models the live media handled by a call: tracks, streams, and the
// local capture devices that produce them.
//
// A Track is a single audio or video source. Audio tracks fan raw PCM frames
// out to registered sinks, which is how the audio pipeline in av/audio
// observes a participant's voice. A Stream groups the tracks published to (or
// received from) the mesh as one unit.
//
// # Tracks
//
// Tracks follow the browser MediaStreamTrack semantics the rest of the system
// was designed around:
//
//   - A disabled audio track keeps delivering frames, but they are silent.
//   - Stop ends a track permanently and runs its OnEnded handlers once.
//   - Writing to an ended track returns ErrTrackEnded.
//
// # Devices
//
// Devices is the boundary to local capture hardware. StaticDevices fabricates
// tracks without hardware and is used by the sandbox tool and by tests:
//
//	devices := av.NewStaticDevices()
//	stream, err := devices.UserMedia(ctx, av.Constraints{Audio: true, Video: true})
//	if err != nil {
//	    return err
//	}
//	defer stream.Stop()
package av
