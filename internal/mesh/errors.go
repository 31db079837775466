package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrClosed           = errors.New("mesh closed")
	ErrUnknownPeer      = errors.New("peer is not in the roster")
	ErrNoLink           = errors.New("no link for peer")
	ErrUnexpectedSignal = errors.New("unexpected signal")
	ErrStaleSignal      = errors.New("signal belongs to an abandoned negotiation")
)

// Error records the negotiation step and remote peer that failed.
type Error struct {
	Op   string
	Peer string
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}
