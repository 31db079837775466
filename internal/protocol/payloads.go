package protocol

// JoinRoom is sent by a client to enter a room.
type JoinRoom struct {
	RoomID       string `json:"roomId"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	IsInstructor bool   `json:"isInstructor"`
}

// Participant describes one member connection of a room.
type Participant struct {
	SocketID     string `json:"socketId"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
	IsInstructor bool   `json:"isInstructor"`
}

// RoomJoined is the server's reply to a successful join. Members excludes
// the joiner itself.
type RoomJoined struct {
	ConnectionID string        `json:"connectionId"`
	Members      []Participant `json:"members"`
	Snapshot     RoomSnapshot  `json:"snapshot"`
}

// RoomSnapshot is the full shared state of a room, sent to late joiners.
type RoomSnapshot struct {
	Poll       *PollSnapshot  `json:"poll,omitempty"`
	Whiteboard WhiteboardSync `json:"whiteboard"`
	Hands      []Hand         `json:"hands"`
	Muted      []string       `json:"muted"`
	Recording  bool           `json:"recording"`
}

// SessionDescription carries an SDP offer or answer. Generation increases
// every time the initiator abandons a stalled negotiation and re-offers.
type SessionDescription struct {
	Type       string `json:"type"`
	SDP        string `json:"sdp"`
	UserID     string `json:"userId"`
	Generation int    `json:"generation"`
}

// ICECandidate mirrors the browser RTCIceCandidateInit dictionary.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// CandidatePayload is the ice-candidate message body.
type CandidatePayload struct {
	Candidate  ICECandidate `json:"candidate"`
	UserID     string       `json:"userId"`
	Generation int          `json:"generation"`
}

// Chat is a single chat line. The server fills in identity and timestamp.
type Chat struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// PollLaunch is the instructor's request to open a poll.
type PollLaunch struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// PollVote selects one option of the active poll.
type PollVote struct {
	OptionIdx int    `json:"optionIdx"`
	UserID    string `json:"userId,omitempty"`
}

// PollSnapshot is the public view of a poll.
type PollSnapshot struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Votes    []int    `json:"votes"`
	Voters   int      `json:"voters"`
	Active   bool     `json:"active"`
}

// Hand is one raised-hand entry.
type Hand struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// HandsUpdated carries the ordered raised-hand list.
type HandsUpdated struct {
	Hands []Hand `json:"hands"`
}

// MuteTarget names the user of a mute-user or unmute-user command.
type MuteTarget struct {
	UserID string `json:"userId"`
}

// MuteState carries the authoritative muted user-id set.
type MuteState struct {
	Muted []string `json:"muted"`
}

// UnmuteRequest is forwarded to instructors only.
type UnmuteRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Point is a whiteboard coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one whiteboard line segment. Seq is assigned by the server.
type Stroke struct {
	From  Point   `json:"from"`
	To    Point   `json:"to"`
	Color string  `json:"color"`
	Width float64 `json:"width"`
	Seq   uint64  `json:"seq,omitempty"`
}

// WhiteboardUpdate carries strokes drawn since the sender's last update.
type WhiteboardUpdate struct {
	Strokes []Stroke `json:"strokes"`
}

// WhiteboardDelta carries newly appended strokes. FromSeq is the sequence
// number of the first stroke.
type WhiteboardDelta struct {
	Epoch   uint64   `json:"epoch"`
	FromSeq uint64   `json:"fromSeq"`
	Strokes []Stroke `json:"strokes"`
}

// WhiteboardSync is the full stroke log. Seq is the last assigned sequence
// number.
type WhiteboardSync struct {
	Epoch   uint64   `json:"epoch"`
	Seq     uint64   `json:"seq"`
	Strokes []Stroke `json:"strokes"`
}

// WhiteboardClear announces a truncated board.
type WhiteboardClear struct {
	Epoch uint64 `json:"epoch"`
}

// Reaction is an ephemeral emoji reaction.
type Reaction struct {
	Emoji    string `json:"emoji"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
}

// RecordingState reports whether the room is being recorded.
type RecordingState struct {
	Recording bool `json:"recording"`
}

// Evicted tells a connection it was removed from a room.
type Evicted struct {
	Reason string `json:"reason"`
}

// ErrorPayload represents error messages from the server.
type ErrorPayload struct {
	Message string `json:"message"`
}
