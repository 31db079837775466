// Package roomstate holds the shared facts of one classroom: the active poll,
// the whiteboard log, raised hands, the mute set and the recording flag.
//
// None of the types here are safe for concurrent use. A room actor owns one
// State and mutates it from a single goroutine.
package roomstate

import "github.com/liveclass/classroom/internal/protocol"

type State struct {
	Poll       PollSlot
	Whiteboard Whiteboard
	Hands      HandQueue
	Muted      MuteSet
	Recording  bool
}

func New() *State {
	return &State{}
}

// Snapshot builds the state sent to a joining member.
func (s *State) Snapshot() protocol.RoomSnapshot {
	snap := protocol.RoomSnapshot{
		Whiteboard: s.Whiteboard.Snapshot(),
		Hands:      s.Hands.List(),
		Muted:      s.Muted.List(),
		Recording:  s.Recording,
	}
	if p := s.Poll.Active(); p != nil {
		ps := p.Snapshot(true)
		snap.Poll = &ps
	}
	return snap
}
