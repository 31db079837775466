package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

var (
	ErrMutedByInstructor = errors.New("muted by instructor")
	ErrNotStarted        = errors.New("media not started")
	ErrAlreadySharing    = errors.New("already sharing screen")
	ErrNotSharing        = errors.New("not sharing screen")
)

// VideoReplacer swaps the outgoing video on every peer link.
type VideoReplacer interface {
	ReplaceVideoTrack(track webrtc.TrackLocal) error
}

type State struct {
	Audio             bool
	Video             bool
	SharingScreen     bool
	MutedByInstructor bool
}

// Controller owns the local tracks. Its lock is never held while the mesh
// calls back into OutgoingTracks.
type Controller struct {
	capturer   Capturer
	selfUserID string
	logger     *slog.Logger

	mu                sync.Mutex
	mic               *LocalTrack
	camera            *LocalTrack
	display           *LocalTrack
	replacer          VideoReplacer
	mutedByInstructor bool
	onChange          func(State)

	outAudio atomic.Pointer[LocalTrack]
	outVideo atomic.Pointer[LocalTrack]
}

func NewController(capturer Capturer, selfUserID string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		capturer:   capturer,
		selfUserID: selfUserID,
		logger:     logger.With("component", "media"),
	}
}

// OnChange registers f to run after every state change.
func (c *Controller) OnChange(f func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = f
}

// Attach sets where screen-share track swaps are applied.
func (c *Controller) Attach(r VideoReplacer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replacer = r
}

// Start acquires the microphone and camera.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.mic != nil {
		c.mu.Unlock()
		return nil
	}

	mic, err := c.capturer.Acquire(ctx, KindMicrophone)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("start media: %w", err)
	}
	camera, err := c.capturer.Acquire(ctx, KindCamera)
	if err != nil {
		mic.Stop()
		c.mu.Unlock()
		return fmt.Errorf("start media: %w", err)
	}

	mic.SetEnabled(!c.mutedByInstructor)
	c.mic, c.camera = mic, camera
	c.outAudio.Store(mic)
	c.outVideo.Store(camera)
	c.mu.Unlock()

	c.notify()
	return nil
}

// OutgoingTracks returns the tracks new peer links should carry.
func (c *Controller) OutgoingTracks() (audio, video webrtc.TrackLocal) {
	if t := c.outAudio.Load(); t != nil {
		audio = t.Track()
	}
	if t := c.outVideo.Load(); t != nil {
		video = t.Track()
	}
	return audio, video
}

// ToggleAudio flips the microphone. It refuses while an instructor has this
// user muted.
func (c *Controller) ToggleAudio() (bool, error) {
	c.mu.Lock()
	if c.mic == nil {
		c.mu.Unlock()
		return false, ErrNotStarted
	}
	if c.mutedByInstructor {
		c.mu.Unlock()
		return false, ErrMutedByInstructor
	}
	on := !c.mic.Enabled()
	c.mic.SetEnabled(on)
	c.mu.Unlock()

	c.notify()
	return on, nil
}

func (c *Controller) ToggleVideo() (bool, error) {
	c.mu.Lock()
	if c.camera == nil {
		c.mu.Unlock()
		return false, ErrNotStarted
	}
	on := !c.camera.Enabled()
	c.camera.SetEnabled(on)
	c.mu.Unlock()

	c.notify()
	return on, nil
}

// ApplyMuteSet follows the room's mute set. The microphone is switched only
// when this user enters or leaves the set.
func (c *Controller) ApplyMuteSet(muted []string) {
	c.mu.Lock()
	m := slices.Contains(muted, c.selfUserID)
	if m == c.mutedByInstructor {
		c.mu.Unlock()
		return
	}
	c.mutedByInstructor = m
	if c.mic != nil {
		c.mic.SetEnabled(!m)
	}
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) StartScreenShare(ctx context.Context) error {
	c.mu.Lock()
	if c.mic == nil {
		c.mu.Unlock()
		return ErrNotStarted
	}
	if c.display != nil {
		c.mu.Unlock()
		return ErrAlreadySharing
	}

	display, err := c.capturer.Acquire(ctx, KindDisplay)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("start screen share: %w", err)
	}

	c.outVideo.Store(display)
	if err := c.replaceLocked(display); err != nil {
		c.outVideo.Store(c.camera)
		if rerr := c.replaceLocked(c.camera); rerr != nil {
			c.logger.Warn("Failed to restore camera", "error", rerr)
		}
		display.Stop()
		c.mu.Unlock()
		return fmt.Errorf("start screen share: %w", err)
	}
	c.display = display
	display.OnEnded(func() { c.displayEnded(display) })
	c.mu.Unlock()

	c.notify()
	return nil
}

// StopScreenShare goes back to the camera, reacquiring it if it stopped.
func (c *Controller) StopScreenShare(ctx context.Context) error {
	c.mu.Lock()
	display := c.display
	if display == nil {
		c.mu.Unlock()
		return ErrNotSharing
	}
	display.OnEnded(nil)
	c.display = nil
	err := c.restoreCameraLocked(ctx, display)
	c.mu.Unlock()

	c.notify()
	return err
}

// displayEnded handles the display source going away on its own.
func (c *Controller) displayEnded(display *LocalTrack) {
	c.mu.Lock()
	if c.display != display {
		c.mu.Unlock()
		return
	}
	c.display = nil
	if err := c.restoreCameraLocked(context.Background(), display); err != nil {
		c.logger.Warn("Failed to restore camera after screen share ended", "error", err)
	}
	c.mu.Unlock()

	c.notify()
}

func (c *Controller) restoreCameraLocked(ctx context.Context, display *LocalTrack) error {
	defer display.Stop()

	if c.camera == nil || c.camera.Stopped() {
		camera, err := c.capturer.Acquire(ctx, KindCamera)
		if err != nil {
			c.camera = nil
			c.outVideo.Store(nil)
			if rerr := c.replaceLocked(nil); rerr != nil {
				c.logger.Warn("Failed to clear video", "error", rerr)
			}
			return fmt.Errorf("stop screen share: %w", err)
		}
		c.camera = camera
	}

	c.outVideo.Store(c.camera)
	if err := c.replaceLocked(c.camera); err != nil {
		return fmt.Errorf("stop screen share: %w", err)
	}
	return nil
}

func (c *Controller) replaceLocked(t *LocalTrack) error {
	if c.replacer == nil {
		return nil
	}
	var track webrtc.TrackLocal
	if t != nil {
		track = t.Track()
	}
	return c.replacer.ReplaceVideoTrack(track)
}

// Preview is the source shown locally.
func (c *Controller) Preview() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.display != nil {
		return KindDisplay
	}
	return KindCamera
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	s := State{
		SharingScreen:     c.display != nil,
		MutedByInstructor: c.mutedByInstructor,
	}
	if c.mic != nil {
		s.Audio = c.mic.Enabled() && !c.mic.Stopped()
	}
	if c.camera != nil {
		s.Video = c.camera.Enabled() && !c.camera.Stopped()
	}
	return s
}

// Close stops every captured track.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.display != nil {
		c.display.OnEnded(nil)
	}
	for _, t := range []*LocalTrack{c.mic, c.camera, c.display} {
		if t != nil {
			t.Stop()
		}
	}
	c.mic, c.camera, c.display = nil, nil, nil
	c.outAudio.Store(nil)
	c.outVideo.Store(nil)
}

func (c *Controller) notify() {
	c.mu.Lock()
	f := c.onChange
	s := c.stateLocked()
	c.mu.Unlock()
	if f != nil {
		f(s)
	}
}
