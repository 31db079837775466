package signaling

import (
	"context"

	"github.com/google/uuid"

	"github.com/liveclass/classroom/internal/protocol"
	"github.com/liveclass/classroom/internal/roomstate"
)

// Polls

func (r *Room) launchPoll(p protocol.Participant, msg *protocol.Message) {
	if !r.instructorOnly(p, msg.Type) {
		return
	}
	var in protocol.PollLaunch
	if err := msg.Decode(&in); err != nil {
		r.logger.Debug("Malformed poll", "error", err)
		return
	}
	poll, err := roomstate.NewPoll(uuid.NewString(), in.Question, in.Options)
	if err != nil {
		r.logger.Debug("Rejected poll", "user", p.UserID, "error", err)
		return
	}
	if err := r.state.Poll.Launch(poll); err != nil {
		r.logger.Debug("Rejected poll", "user", p.UserID, "error", err)
		return
	}
	r.broadcast(protocol.TypePollLaunched, "", poll.Snapshot(true), nil)
}

// votePoll counts a vote for the sender's own user id. Any user id in the
// payload is ignored.
func (r *Room) votePoll(p protocol.Participant, msg *protocol.Message) {
	var in protocol.PollVote
	if err := msg.Decode(&in); err != nil {
		return
	}
	if !r.state.Poll.Vote(p.UserID, in.OptionIdx) {
		return
	}
	r.broadcast(protocol.TypePollUpdated, "", r.state.Poll.Active().Snapshot(true), nil)
}

func (r *Room) endPoll(p protocol.Participant) {
	if !r.instructorOnly(p, protocol.TypeEndPoll) {
		return
	}
	if snap, ok := r.state.Poll.End(); ok {
		r.broadcast(protocol.TypePollEnded, "", snap, nil)
	}
}

// Whiteboard

func (r *Room) whiteboardUpdate(msg *protocol.Message) {
	var in protocol.WhiteboardUpdate
	if err := msg.Decode(&in); err != nil || len(in.Strokes) == 0 {
		return
	}
	delta := r.state.Whiteboard.Append(in.Strokes)
	r.broadcast(protocol.TypeWhiteboardDiff, "", delta, nil)

	if r.state.Whiteboard.DeltasSinceSync() >= r.syncEvery {
		r.broadcast(protocol.TypeWhiteboardSync, "", r.state.Whiteboard.Sync(), nil)
	}
}

func (r *Room) whiteboardClear() {
	epoch := r.state.Whiteboard.Clear()
	r.broadcast(protocol.TypeWhiteboardClear, "", protocol.WhiteboardClear{Epoch: epoch}, nil)
}

// flushWhiteboard sends a full sync if anything was drawn since the last one.
func (r *Room) flushWhiteboard() {
	if r.state.Whiteboard.Dirty() {
		r.broadcast(protocol.TypeWhiteboardSync, "", r.state.Whiteboard.Sync(), nil)
	}
}

// Hands

func (r *Room) raiseHand(p protocol.Participant) {
	if r.state.Hands.Raise(protocol.Hand{UserID: p.UserID, UserName: p.UserName}) {
		r.broadcastHands()
	}
}

// lowerHand lowers the sender's hand. Instructors may name another user.
func (r *Room) lowerHand(p protocol.Participant, msg *protocol.Message) {
	target := p.UserID
	var in protocol.MuteTarget
	if len(msg.Payload) > 0 && msg.Decode(&in) == nil && in.UserID != "" && in.UserID != p.UserID {
		if !r.instructorOnly(p, msg.Type) {
			return
		}
		target = in.UserID
	}
	if r.state.Hands.Lower(target) {
		r.broadcastHands()
	}
}

func (r *Room) broadcastHands() {
	r.broadcast(protocol.TypeHandsUpdated, "", protocol.HandsUpdated{Hands: r.state.Hands.List()}, nil)
}

// Moderation

func (r *Room) muteUser(p protocol.Participant, msg *protocol.Message, mute bool) {
	if !r.instructorOnly(p, msg.Type) {
		return
	}
	var in protocol.MuteTarget
	if err := msg.Decode(&in); err != nil || in.UserID == "" {
		return
	}
	var changed bool
	if mute {
		changed = r.state.Muted.Mute(in.UserID)
	} else {
		changed = r.state.Muted.Unmute(in.UserID)
	}
	if changed {
		r.broadcastMuteState()
	}
}

// muteAll mutes every student present. Instructors are never included.
func (r *Room) muteAll(p protocol.Participant) {
	if !r.instructorOnly(p, protocol.TypeMuteAll) {
		return
	}
	var students []string
	for _, m := range r.members {
		if !m.IsInstructor {
			students = append(students, m.UserID)
		}
	}
	if r.state.Muted.MuteAll(students) {
		r.broadcastMuteState()
	}
}

func (r *Room) unmuteAll(p protocol.Participant) {
	if !r.instructorOnly(p, protocol.TypeUnmuteAll) {
		return
	}
	if r.state.Muted.UnmuteAll() {
		r.broadcastMuteState()
	}
}

func (r *Room) broadcastMuteState() {
	r.broadcast(protocol.TypeMuteState, "", protocol.MuteState{Muted: r.state.Muted.List()}, nil)
}

// requestUnmute forwards a muted student's request to instructors only.
func (r *Room) requestUnmute(c *Client, p protocol.Participant) {
	if p.IsInstructor || !r.state.Muted.Contains(p.UserID) {
		return
	}
	msg := r.newMessage(protocol.TypeRequestUnmute, c.ID, protocol.UnmuteRequest{
		UserID:   p.UserID,
		UserName: p.UserName,
	})
	if msg == nil {
		return
	}
	for _, m := range r.order {
		if r.members[m].IsInstructor {
			m.Deliver(msg)
		}
	}
}

// Recording

func (r *Room) setRecording(p protocol.Participant, on bool) {
	action := protocol.TypeStopRecording
	if on {
		action = protocol.TypeStartRecording
	}
	if !r.instructorOnly(p, action) || r.state.Recording == on {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()

	trigger := r.recorder.Stop
	if on {
		trigger = r.recorder.Start
	}
	if err := trigger(ctx, r.Key); err != nil {
		r.logger.Warn("Recording trigger failed", "action", action, "error", err)
		return
	}

	r.state.Recording = on
	r.broadcast(protocol.TypeRecordingState, "", protocol.RecordingState{Recording: on}, nil)
}
