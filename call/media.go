package call

import (
	"context"
	"fmt"

	"github.com/opd-ai/meshcall/av"
	"github.com/opd-ai/meshcall/av/audio"
	"github.com/opd-ai/meshcall/room"
	"github.com/sirupsen/logrus"
)

// LocalStream returns the outgoing stream, capturing one if none exists or
// forceReplace is set. A replacement stops the previous tracks, gets a
// fresh audio pipeline, and is published to the room. While sharing the
// screen the screen capture is returned instead.
func (c *Controller) LocalStream(ctx context.Context, forceReplace bool) (*av.Stream, error) {
	c.mu.Lock()
	if c.sharing && c.screen != nil {
		screen := c.screen
		c.mu.Unlock()
		return screen, nil
	}
	if c.local != nil && !forceReplace {
		local := c.local
		c.mu.Unlock()
		return local, nil
	}
	opts := c.options
	c.mu.Unlock()

	stream, err := c.devices.UserMedia(ctx, av.Constraints{Audio: true, Video: true})
	if err != nil {
		return nil, fmt.Errorf("local stream: %w", err)
	}
	stream.SetEnabled(av.KindVideo, opts.VideoEnabled)
	stream.SetEnabled(av.KindAudio, opts.AudioEnabled())

	pipeline, err := audio.NewPipeline(c.identity, stream, c.pipelineCfg, func(meta audio.Meta) {
		c.signals.LocalMedia.Set(meta)
	})
	if err != nil {
		stream.Stop()
		return nil, fmt.Errorf("local stream: %w", err)
	}

	c.mu.Lock()
	old, oldPipeline := c.local, c.pipeline
	c.local, c.pipeline = stream, pipeline
	r := c.room
	c.mu.Unlock()

	if oldPipeline != nil {
		oldPipeline.Remove()
	}
	if old != nil {
		old.Stop()
	}
	if r != nil {
		if err := r.Publish(stream); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.LocalStream",
				"error":    err.Error(),
			}).Warn("Publishing replacement stream failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Controller.LocalStream",
		"stream_id": stream.ID(),
		"replaced":  old != nil,
	}).Debug("Local stream captured")

	return stream, nil
}

// ToggleMute sets the mute intent. The microphone stays off while deafened.
func (c *Controller) ToggleMute(muted bool) {
	c.mu.Lock()
	c.options.Muted = muted
	live := c.options.AudioEnabled()
	local, r, state := c.local, c.room, c.localStateLocked()
	c.mu.Unlock()

	if local != nil {
		local.SetEnabled(av.KindAudio, live)
	}
	c.announce(r, state)
	if r != nil {
		r.ToggleStreams(live, room.StreamAudio)
	}
}

// ToggleVideo sets the camera intent. While sharing the screen only the
// announced flag changes.
func (c *Controller) ToggleVideo(enabled bool) {
	c.mu.Lock()
	c.options.VideoEnabled = enabled
	sharing := c.sharing
	local, r, state := c.local, c.room, c.localStateLocked()
	c.mu.Unlock()

	if !sharing {
		if local != nil {
			local.SetEnabled(av.KindVideo, enabled)
		}
		if r != nil {
			r.ToggleStreams(enabled, room.StreamVideo)
		}
	}
	c.announce(r, state)
}

// ToggleDeafen sets the deafen intent: inbound audio and the microphone go
// quiet. Un-deafening restores the microphone only if not muted.
func (c *Controller) ToggleDeafen(deafened bool) {
	c.mu.Lock()
	c.options.Deafened = deafened
	live := c.options.AudioEnabled()
	local, r, state := c.local, c.room, c.localStateLocked()
	c.mu.Unlock()

	c.announce(r, state)
	if r != nil {
		r.ToggleStreams(!deafened, room.StreamDeafen)
		return
	}
	if local != nil {
		local.SetEnabled(av.KindAudio, live)
	}
}

// ToggleScreenShare starts or stops sharing the screen.
func (c *Controller) ToggleScreenShare(ctx context.Context, on bool) error {
	if on {
		return c.StartScreenShare(ctx)
	}
	return c.StopScreenShare(ctx)
}

// StartScreenShare captures the screen and swaps it in for the camera on
// the outgoing stream. The camera track is kept for StopScreenShare. If
// capture fails the share intent is rolled back and ErrScreenCapture is
// returned; the call is unaffected.
func (c *Controller) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	if c.sharing {
		c.mu.Unlock()
		return nil
	}
	hasLocal := c.local != nil
	c.mu.Unlock()
	if !hasLocal {
		c.device.ScreenShare.Set(false)
		return fmt.Errorf("screen share: %w", ErrNotInCall)
	}

	screen, err := c.devices.DisplayMedia(ctx)
	if err == nil && len(screen.VideoTracks()) == 0 {
		screen.Stop()
		err = fmt.Errorf("no video track in capture")
	}
	if err != nil {
		c.mu.Lock()
		c.options.ScreenShare = false
		c.mu.Unlock()
		c.device.ScreenShare.Set(false)
		logrus.WithFields(logrus.Fields{
			"function": "Controller.StartScreenShare",
			"error":    err.Error(),
		}).Error("Error starting screen share")
		return fmt.Errorf("%w: %v", ErrScreenCapture, err)
	}
	screenTrack := screen.VideoTracks()[0]

	c.mu.Lock()
	local := c.local
	if local == nil || c.sharing {
		// The call ended or another share won while capturing.
		c.mu.Unlock()
		screen.Stop()
		return nil
	}
	var camera *av.Track
	if videos := local.VideoTracks(); len(videos) > 0 {
		camera = videos[0]
		local.RemoveTrack(camera)
	}
	local.AddTrack(screenTrack)
	c.camera = camera
	c.screen = screen
	c.sharing = true
	c.options.ScreenShare = true
	r, state := c.room, c.localStateLocked()
	c.mu.Unlock()

	if r != nil {
		if err := r.ReplaceTrack(camera, screenTrack); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.StartScreenShare",
				"error":    err.Error(),
			}).Warn("Track replacement failed")
		}
	}
	screenTrack.OnEnded(func() {
		if err := c.StopScreenShare(c.ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.StartScreenShare",
				"error":    err.Error(),
			}).Warn("Stopping ended screen share failed")
		}
	})

	c.device.ScreenShare.Set(true)
	c.announce(r, state)

	logrus.WithFields(logrus.Fields{
		"function":  "Controller.StartScreenShare",
		"stream_id": screen.ID(),
	}).Info("Screen share started")

	return nil
}

// StopScreenShare restores the camera track on the outgoing stream and
// releases the screen capture. A no-op when not sharing.
func (c *Controller) StopScreenShare(ctx context.Context) error {
	c.mu.Lock()
	if !c.sharing || c.screen == nil {
		c.mu.Unlock()
		return nil
	}
	camera := c.camera
	c.mu.Unlock()

	if camera == nil || camera.Ended() {
		fresh, err := c.devices.UserMedia(ctx, av.Constraints{Video: true})
		if err == nil && len(fresh.VideoTracks()) == 0 {
			fresh.Stop()
			err = fmt.Errorf("no video track in capture")
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.StopScreenShare",
				"error":    err.Error(),
			}).Warn("Camera not recaptured")
			camera = nil
		} else {
			camera = fresh.VideoTracks()[0]
		}
	}

	c.mu.Lock()
	if !c.sharing || c.screen == nil {
		c.mu.Unlock()
		return nil
	}
	screen, local := c.screen, c.local
	var screenTrack *av.Track
	if tracks := screen.VideoTracks(); len(tracks) > 0 {
		screenTrack = tracks[0]
	}
	if local != nil {
		if screenTrack != nil {
			local.RemoveTrack(screenTrack)
		}
		if camera != nil {
			camera.SetEnabled(c.options.VideoEnabled)
			local.AddTrack(camera)
		}
	}
	c.screen, c.camera = nil, nil
	c.sharing = false
	c.options.ScreenShare = false
	videoEnabled := c.options.VideoEnabled
	r, state := c.room, c.localStateLocked()
	c.mu.Unlock()

	if r != nil && camera != nil && screenTrack != nil {
		if err := r.ReplaceTrack(screenTrack, camera); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Controller.StopScreenShare",
				"error":    err.Error(),
			}).Warn("Track replacement failed")
		}
	}
	screen.Stop()

	if videoEnabled {
		c.device.CameraEnabled.Set(true)
	}
	c.device.ScreenShare.Set(false)
	c.announce(r, state)

	logrus.WithFields(logrus.Fields{
		"function": "Controller.StopScreenShare",
	}).Info("Screen share stopped")

	return nil
}

// Sharing reports whether the screen is being shared.
func (c *Controller) Sharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharing
}

func (c *Controller) announce(r *room.Room, state room.ParticipantState) {
	if r == nil {
		return
	}
	if err := r.Notify(state); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.announce",
			"error":    err.Error(),
		}).Debug("Presence not sent")
	}
}
