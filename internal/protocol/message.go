package protocol

import (
	"encoding/json"
	"fmt"
)

// Message defines the envelope for every frame exchanged between a
// client and the signaling server, in both directions.
type Message struct {
	Type    string          `json:"type" msgpack:"type"`
	RoomID  string          `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	From    string          `json:"from,omitempty" msgpack:"from,omitempty"`
	To      string          `json:"to,omitempty" msgpack:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// Client to server.
const (
	TypeJoinRoom              = "join-room"
	TypeLeaveRoom             = "leave-room"
	TypeLaunchPoll            = "launch-poll"
	TypeVotePoll              = "vote-poll"
	TypeEndPoll               = "end-poll"
	TypeRaiseHand             = "raise-hand"
	TypeLowerHand             = "lower-hand"
	TypeMuteUser              = "mute-user"
	TypeUnmuteUser            = "unmute-user"
	TypeMuteAll               = "mute-all"
	TypeUnmuteAll             = "unmute-all"
	TypeWhiteboardUpdate      = "whiteboard-update"
	TypeWhiteboardSyncRequest = "whiteboard-sync-request"
	TypeSendReaction          = "send-reaction"
	TypeStartRecording        = "start-recording"
	TypeStopRecording         = "stop-recording"
)

// Peer to peer, relayed by the server to the target connection only.
const (
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// Both directions.
const (
	TypeChatMessage     = "chat-message"
	TypeRequestUnmute   = "request-unmute"
	TypeWhiteboardClear = "whiteboard-clear"
)

// Server to client.
const (
	TypeRoomJoined     = "room-joined"
	TypeUserJoined     = "user-joined"
	TypeUserLeft       = "user-left"
	TypeEvicted        = "evicted"
	TypePollLaunched   = "poll-launched"
	TypePollUpdated    = "poll-updated"
	TypePollEnded      = "poll-ended"
	TypeHandsUpdated   = "hands-updated"
	TypeMuteState      = "mute-state"
	TypeWhiteboardSync = "whiteboard-sync"
	TypeWhiteboardDiff = "whiteboard-delta"
	TypeShowReaction   = "show-reaction"
	TypeRecordingState = "recording-state"
	TypeError          = "error"
)

// NewMessage creates a Message of the given type with a JSON encoded payload.
// A nil payload leaves the payload field empty.
func NewMessage(t string, payload any) (*Message, error) {
	msg := &Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	msg.Payload = b
	return msg, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// IsPointToPoint reports whether the message type is delivered only to the
// connection named in To.
func IsPointToPoint(t string) bool {
	switch t {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}
