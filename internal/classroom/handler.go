package classroom

import (
	"fmt"
	"slices"

	"github.com/liveclass/classroom/internal/protocol"
)

// handle routes one server message into the mesh, the media controller and
// the replicas.
func (s *Session) handle(msg *protocol.Message) {
	var err error
	switch msg.Type {
	case protocol.TypeRoomJoined:
		err = s.handleRoomJoined(msg)
	case protocol.TypeUserJoined:
		err = s.handleUserJoined(msg)
	case protocol.TypeUserLeft:
		err = s.handleUserLeft(msg)
	case protocol.TypeEvicted:
		s.end(ErrEvicted)
	case protocol.TypeError:
		err = s.handleError(msg)

	case protocol.TypeOffer:
		var d protocol.SessionDescription
		if err = msg.Decode(&d); err == nil {
			err = s.mesh.HandleOffer(msg.From, d)
		}
	case protocol.TypeAnswer:
		var d protocol.SessionDescription
		if err = msg.Decode(&d); err == nil {
			err = s.mesh.HandleAnswer(msg.From, d)
		}
	case protocol.TypeICECandidate:
		var c protocol.CandidatePayload
		if err = msg.Decode(&c); err == nil {
			err = s.mesh.HandleCandidate(msg.From, c)
		}

	case protocol.TypePollLaunched, protocol.TypePollUpdated:
		err = s.handlePoll(msg)
	case protocol.TypePollEnded:
		err = s.handlePollEnded(msg)
	case protocol.TypeHandsUpdated:
		var in protocol.HandsUpdated
		if err = msg.Decode(&in); err == nil {
			s.mu.Lock()
			s.hands = in.Hands
			s.mu.Unlock()
		}
	case protocol.TypeMuteState:
		err = s.handleMuteState(msg)
	case protocol.TypeRequestUnmute:
		err = s.handleUnmuteRequest(msg)

	case protocol.TypeWhiteboardDiff:
		err = s.handleWhiteboardDelta(msg)
	case protocol.TypeWhiteboardSync:
		var in protocol.WhiteboardSync
		if err = msg.Decode(&in); err == nil {
			s.mu.Lock()
			s.board.applySync(in)
			s.mu.Unlock()
		}
	case protocol.TypeWhiteboardClear:
		var in protocol.WhiteboardClear
		if err = msg.Decode(&in); err == nil {
			s.mu.Lock()
			s.board.clear(in.Epoch)
			s.mu.Unlock()
		}

	case protocol.TypeShowReaction:
		var in protocol.Reaction
		if err = msg.Decode(&in); err == nil {
			s.mu.Lock()
			s.reactions.add(s.opts.Now(), in)
			s.mu.Unlock()
		}
	case protocol.TypeChatMessage:
		var in protocol.Chat
		if err = msg.Decode(&in); err == nil {
			s.mu.Lock()
			s.chat.add(in)
			s.mu.Unlock()
		}
	case protocol.TypeRecordingState:
		var in protocol.RecordingState
		if err = msg.Decode(&in); err == nil {
			s.mu.Lock()
			s.recording = in.Recording
			s.mu.Unlock()
		}

	default:
		s.logger.Debug("Ignoring message", "type", msg.Type)
		return
	}

	if err != nil {
		s.logger.Debug("Failed to handle message", "type", msg.Type, "from", msg.From, "error", err)
	}
	s.notify()
}

func (s *Session) handleRoomJoined(msg *protocol.Message) error {
	var in protocol.RoomJoined
	if err := msg.Decode(&in); err != nil {
		s.completeJoin(fmt.Errorf("%w: malformed room-joined", ErrJoinRejected))
		return err
	}

	s.mu.Lock()
	s.connID = in.ConnectionID
	s.joined = true
	s.roster.reset(in.Members)
	s.applySnapshotLocked(in.Snapshot)
	muted := s.muted
	s.mu.Unlock()

	s.media.ApplyMuteSet(muted)
	err := s.mesh.Joined(in.Members)
	s.completeJoin(nil)
	return err
}

// completeJoin completes a pending Join.
func (s *Session) completeJoin(err error) {
	select {
	case s.joinResult <- err:
	default:
	}
}

func (s *Session) applySnapshotLocked(snap protocol.RoomSnapshot) {
	s.poll = snap.Poll
	if s.poll != nil && !s.poll.Active {
		s.poll = nil
	}
	s.board = boardReplica{}
	s.board.applySync(snap.Whiteboard)
	s.hands = snap.Hands
	s.muted = snap.Muted
	s.recording = snap.Recording
}

func (s *Session) handleUserJoined(msg *protocol.Message) error {
	var p protocol.Participant
	if err := msg.Decode(&p); err != nil {
		return err
	}
	s.mu.Lock()
	s.roster.add(p)
	s.mu.Unlock()
	s.mesh.PeerJoined(p)
	return nil
}

func (s *Session) handleUserLeft(msg *protocol.Message) error {
	var p protocol.Participant
	if err := msg.Decode(&p); err != nil {
		return err
	}
	s.mu.Lock()
	s.roster.remove(p.SocketID)
	s.mu.Unlock()
	s.mesh.PeerLeft(p.SocketID)
	return nil
}

func (s *Session) handleError(msg *protocol.Message) error {
	var in protocol.ErrorPayload
	if err := msg.Decode(&in); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastError = in.Message
	joined := s.joined
	s.mu.Unlock()

	if !joined {
		s.completeJoin(fmt.Errorf("%w: %s", ErrJoinRejected, in.Message))
	}
	return nil
}

func (s *Session) handlePoll(msg *protocol.Message) error {
	var in protocol.PollSnapshot
	if err := msg.Decode(&in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poll = &in
	return nil
}

func (s *Session) handlePollEnded(msg *protocol.Message) error {
	var in protocol.PollSnapshot
	if err := msg.Decode(&in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poll = nil
	s.lastPoll = &in
	return nil
}

func (s *Session) handleMuteState(msg *protocol.Message) error {
	var in protocol.MuteState
	if err := msg.Decode(&in); err != nil {
		return err
	}
	s.mu.Lock()
	s.muted = in.Muted
	s.dropAnsweredRequestsLocked()
	s.mu.Unlock()

	s.media.ApplyMuteSet(in.Muted)
	return nil
}

// dropAnsweredRequestsLocked forgets unmute requests from users no longer
// muted.
func (s *Session) dropAnsweredRequestsLocked() {
	kept := s.unmuteRequests[:0]
	for _, r := range s.unmuteRequests {
		if slices.Contains(s.muted, r.UserID) {
			kept = append(kept, r)
		}
	}
	s.unmuteRequests = kept
}

func (s *Session) handleUnmuteRequest(msg *protocol.Message) error {
	var in protocol.UnmuteRequest
	if err := msg.Decode(&in); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.unmuteRequests {
		if r.UserID == in.UserID {
			return nil
		}
	}
	s.unmuteRequests = append(s.unmuteRequests, in)
	return nil
}

// handleWhiteboardDelta applies a delta, or asks for a full sync when the
// local log has fallen behind.
func (s *Session) handleWhiteboardDelta(msg *protocol.Message) error {
	var in protocol.WhiteboardDelta
	if err := msg.Decode(&in); err != nil {
		return err
	}
	s.mu.Lock()
	ok := s.board.applyDelta(in)
	request := !ok && !s.board.syncRequested
	if request {
		s.board.syncRequested = true
	}
	s.mu.Unlock()

	if request {
		s.logger.Debug("Whiteboard out of sync, requesting full log", "epoch", in.Epoch, "fromSeq", in.FromSeq)
		return s.send(protocol.TypeWhiteboardSyncRequest, nil)
	}
	return nil
}
