package signaling

import (
	"strings"
	"time"

	"github.com/liveclass/classroom/internal/protocol"
)

// maxChatLength caps a single chat line, in bytes.
const maxChatLength = 4096

// handle dispatches one message from a member.
func (r *Room) handle(c *Client, msg *protocol.Message) {
	p, ok := r.members[c]
	if !ok {
		r.logger.Debug("Dropping message from non-member", "conn", c.ID, "type", msg.Type)
		return
	}

	if protocol.IsPointToPoint(msg.Type) {
		r.relay(c, msg)
		return
	}

	switch msg.Type {
	case protocol.TypeChatMessage:
		r.chat(c, p, msg)
	case protocol.TypeSendReaction:
		r.reaction(c, p, msg)

	case protocol.TypeLaunchPoll:
		r.launchPoll(p, msg)
	case protocol.TypeVotePoll:
		r.votePoll(p, msg)
	case protocol.TypeEndPoll:
		r.endPoll(p)

	case protocol.TypeRaiseHand:
		r.raiseHand(p)
	case protocol.TypeLowerHand:
		r.lowerHand(p, msg)

	case protocol.TypeMuteUser:
		r.muteUser(p, msg, true)
	case protocol.TypeUnmuteUser:
		r.muteUser(p, msg, false)
	case protocol.TypeMuteAll:
		r.muteAll(p)
	case protocol.TypeUnmuteAll:
		r.unmuteAll(p)
	case protocol.TypeRequestUnmute:
		r.requestUnmute(c, p)

	case protocol.TypeWhiteboardUpdate:
		r.whiteboardUpdate(msg)
	case protocol.TypeWhiteboardClear:
		r.whiteboardClear()
	case protocol.TypeWhiteboardSyncRequest:
		r.send(c, protocol.TypeWhiteboardSync, r.state.Whiteboard.Snapshot())

	case protocol.TypeStartRecording:
		r.setRecording(p, true)
	case protocol.TypeStopRecording:
		r.setRecording(p, false)

	default:
		r.logger.Debug("Unknown message type", "conn", c.ID, "type", msg.Type)
	}
}

// relay forwards a negotiation message to the single member named in To.
// The payload is passed through untouched.
func (r *Room) relay(c *Client, msg *protocol.Message) {
	target, ok := r.byID[msg.To]
	if !ok || target == c {
		r.logger.Debug("Relay target not in room", "conn", c.ID, "to", msg.To, "type", msg.Type)
		return
	}
	target.Deliver(&protocol.Message{
		Type:    msg.Type,
		RoomID:  r.Key,
		From:    c.ID,
		To:      target.ID,
		Payload: msg.Payload,
	})
}

func (r *Room) chat(c *Client, p protocol.Participant, msg *protocol.Message) {
	var in protocol.Chat
	if err := msg.Decode(&in); err != nil {
		r.logger.Debug("Malformed chat message", "conn", c.ID, "error", err)
		return
	}
	text := strings.TrimSpace(in.Text)
	if text == "" || len(text) > maxChatLength {
		return
	}
	r.broadcast(protocol.TypeChatMessage, c.ID, protocol.Chat{
		RoomID:    r.Key,
		UserID:    p.UserID,
		UserName:  p.UserName,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}, c)
}

// reaction fans out an emoji to everyone else. Nothing is stored.
func (r *Room) reaction(c *Client, p protocol.Participant, msg *protocol.Message) {
	var in protocol.Reaction
	if err := msg.Decode(&in); err != nil || in.Emoji == "" {
		return
	}
	r.broadcast(protocol.TypeShowReaction, c.ID, protocol.Reaction{
		Emoji:    in.Emoji,
		UserID:   p.UserID,
		UserName: p.UserName,
	}, c)
}

// instructorOnly logs and reports false for commands from students.
func (r *Room) instructorOnly(p protocol.Participant, action string) bool {
	if p.IsInstructor {
		return true
	}
	r.logger.Debug("Ignoring instructor command from student", "user", p.UserID, "type", action)
	return false
}
