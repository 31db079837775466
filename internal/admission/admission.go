// Package admission decides whether a user may enter a classroom.
package admission

import (
	"context"
	"errors"
)

var (
	ErrNotEnrolled     = errors.New("user is not enrolled in this class")
	ErrNotInstructor   = errors.New("user is not an instructor of this class")
	ErrMissingIdentity = errors.New("room and user ids are required")
)

// Request describes one join attempt.
type Request struct {
	RoomID     string
	UserID     string
	Instructor bool
}

// Checker is consulted on every join-room before the room sees it.
type Checker interface {
	Admit(ctx context.Context, req Request) error
}

// AllowAll admits every request that carries a room and user id.
type AllowAll struct{}

func (AllowAll) Admit(_ context.Context, req Request) error {
	if req.RoomID == "" || req.UserID == "" {
		return ErrMissingIdentity
	}
	return nil
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, req Request) error

func (f CheckerFunc) Admit(ctx context.Context, req Request) error { return f(ctx, req) }
