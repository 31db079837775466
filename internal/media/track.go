// Package media owns the local capture tracks and the client's audio, video
// and screen-share state.
package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

type Kind int

const (
	KindMicrophone Kind = iota + 1
	KindCamera
	KindDisplay
)

func (k Kind) String() string {
	switch k {
	case KindMicrophone:
		return "microphone"
	case KindCamera:
		return "camera"
	case KindDisplay:
		return "display"
	default:
		return "unknown"
	}
}

func (k Kind) IsAudio() bool {
	return k == KindMicrophone
}

func (k Kind) codec() webrtc.RTPCodecCapability {
	if k.IsAudio() {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

// LocalTrack is one captured source. Samples written while it is disabled or
// after it stopped are dropped.
type LocalTrack struct {
	kind  Kind
	track *webrtc.TrackLocalStaticSample

	enabled atomic.Bool
	stopped atomic.Bool

	mu      sync.Mutex
	onEnded func()
	stop    chan struct{}
}

func NewLocalTrack(kind Kind, streamID string) (*LocalTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(kind.codec(), kind.String(), streamID)
	if err != nil {
		return nil, err
	}
	t := &LocalTrack{kind: kind, track: track, stop: make(chan struct{})}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) Kind() Kind { return t.kind }

// Track is the pion track handed to peer connections.
func (t *LocalTrack) Track() webrtc.TrackLocal { return t.track }

func (t *LocalTrack) Enabled() bool { return t.enabled.Load() }

func (t *LocalTrack) SetEnabled(on bool) { t.enabled.Store(on) }

func (t *LocalTrack) Stopped() bool { return t.stopped.Load() }

// Done is closed when the track stops.
func (t *LocalTrack) Done() <-chan struct{} { return t.stop }

// OnEnded registers f to run once when the track stops.
func (t *LocalTrack) OnEnded(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = f
}

func (t *LocalTrack) WriteSample(s pionmedia.Sample) error {
	if !t.enabled.Load() || t.stopped.Load() {
		return nil
	}
	return t.track.WriteSample(s)
}

// Stop ends the track. Calling it again does nothing.
func (t *LocalTrack) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	close(t.stop)

	t.mu.Lock()
	f := t.onEnded
	t.mu.Unlock()
	if f != nil {
		f()
	}
}
