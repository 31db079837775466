// Package recording defines the hooks a room calls when an instructor
// starts or stops recording. Capturing media to disk is left to the host.
package recording

import (
	"context"
	"log/slog"
)

// Trigger is notified when a room's recording flag flips. Implementations
// should return quickly; the room waits for them.
type Trigger interface {
	Start(ctx context.Context, roomKey string) error
	Stop(ctx context.Context, roomKey string) error
}

// LogTrigger only logs recording transitions.
type LogTrigger struct {
	Logger *slog.Logger
}

func (t LogTrigger) Start(_ context.Context, roomKey string) error {
	t.logger().Info("Recording started", "room", roomKey)
	return nil
}

func (t LogTrigger) Stop(_ context.Context, roomKey string) error {
	t.logger().Info("Recording stopped", "room", roomKey)
	return nil
}

func (t LogTrigger) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
