package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrCaptureCancelled = errors.New("capture cancelled")
	ErrNoDevice         = errors.New("no capture device")
)

// Capturer hands out tracks for a local source.
type Capturer interface {
	Acquire(ctx context.Context, kind Kind) (*LocalTrack, error)
}

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const silenceInterval = 20 * time.Millisecond

// SyntheticCapturer produces tracks without real devices. Microphone tracks
// carry Opus silence; video tracks carry no frames. Fail makes Acquire
// return the given error for a kind.
type SyntheticCapturer struct {
	StreamID string

	mu   sync.Mutex
	fail map[Kind]error
	// acquired counts successful Acquire calls per kind.
	acquired map[Kind]int
}

func NewSyntheticCapturer(streamID string) *SyntheticCapturer {
	return &SyntheticCapturer{
		StreamID: streamID,
		fail:     make(map[Kind]error),
		acquired: make(map[Kind]int),
	}
}

// Fail makes later acquisitions of kind return err. A nil err clears it.
func (c *SyntheticCapturer) Fail(kind Kind, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, kind)
		return
	}
	c.fail[kind] = err
}

func (c *SyntheticCapturer) Acquired(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquired[kind]
}

func (c *SyntheticCapturer) Acquire(ctx context.Context, kind Kind) (*LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire %s: %w", kind, ErrCaptureCancelled)
	}

	c.mu.Lock()
	err := c.fail[kind]
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", kind, err)
	}

	t, err := NewLocalTrack(kind, c.StreamID)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", kind, err)
	}

	c.mu.Lock()
	c.acquired[kind]++
	c.mu.Unlock()

	if kind.IsAudio() {
		go pumpSilence(t)
	}
	return t, nil
}

func pumpSilence(t *LocalTrack) {
	ticker := time.NewTicker(silenceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.Done():
			return
		case <-ticker.C:
			// Write errors come from individual peer bindings going away.
			_ = t.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: silenceInterval})
		}
	}
}
