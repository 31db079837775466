package classroom

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPoll  = errors.New("invalid poll")
	ErrAlreadyVoted = errors.New("already voted in this poll")
	ErrNoActivePoll = errors.New("no active poll")
	ErrNoSuchOption = errors.New("no such poll option")
	ErrEmptyMessage = errors.New("empty chat message")
	ErrNotJoined    = errors.New("not joined")
	ErrJoinRejected = errors.New("join rejected")
	ErrEvicted      = errors.New("joined from another connection")
	ErrDisconnected = errors.New("disconnected from server")
	ErrLeft         = errors.New("left the room")
)

// Error records which session operation failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
