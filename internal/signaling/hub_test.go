package signaling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveclass/classroom/internal/admission"
	"github.com/liveclass/classroom/internal/config"
	"github.com/liveclass/classroom/internal/protocol"
	"github.com/liveclass/classroom/internal/roomstate"
)

const waitFor = time.Second

func startHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hub := NewHub(opts)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return hub
}

type member struct {
	t      *testing.T
	client *Client
	joined protocol.RoomJoined
}

func connect(t *testing.T, hub *Hub) *member {
	return &member{t: t, client: NewLoopbackClient(hub)}
}

func joinRoom(t *testing.T, hub *Hub, room, user string, instructor bool) *member {
	t.Helper()
	m := connect(t, hub)
	m.send(protocol.TypeJoinRoom, "", protocol.JoinRoom{
		RoomID:       room,
		UserID:       user,
		UserName:     "name-" + user,
		IsInstructor: instructor,
	})
	msg := m.expect(protocol.TypeRoomJoined)
	require.NoError(t, msg.Decode(&m.joined))
	return m
}

func (m *member) send(t, to string, payload any) {
	m.t.Helper()
	msg, err := protocol.NewMessage(t, payload)
	require.NoError(m.t, err)
	msg.To = to
	m.client.Submit(msg)
}

// expect skips other traffic until a message of type t arrives.
func (m *member) expect(t string) *protocol.Message {
	m.t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case msg, ok := <-m.client.Outbox():
			require.True(m.t, ok, "outbox closed while waiting for %s", t)
			if msg.Type == t {
				return msg
			}
		case <-timeout:
			require.FailNow(m.t, "timed out waiting for "+t)
		}
	}
}

// expectNone fails if a message of type t arrives within a short window.
func (m *member) expectNone(t string) {
	m.t.Helper()
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case msg, ok := <-m.client.Outbox():
			if !ok {
				return
			}
			assert.NotEqual(m.t, t, msg.Type, "unexpected %s", t)
		case <-timeout:
			return
		}
	}
}

func decode[T any](t *testing.T, msg *protocol.Message) T {
	t.Helper()
	var v T
	require.NoError(t, msg.Decode(&v))
	return v
}

func TestJoinAnnouncesPresence(t *testing.T) {
	hub := startHub(t, Options{})

	x := joinRoom(t, hub, "R1", "X", true)
	assert.Equal(t, x.client.ID, x.joined.ConnectionID)
	assert.Empty(t, x.joined.Members)

	y := joinRoom(t, hub, "R1", "Y", false)
	require.Len(t, y.joined.Members, 1)
	assert.Equal(t, "X", y.joined.Members[0].UserID)
	assert.Equal(t, x.client.ID, y.joined.Members[0].SocketID)

	joined := decode[protocol.Participant](t, x.expect(protocol.TypeUserJoined))
	assert.Equal(t, "Y", joined.UserID)
	assert.Equal(t, y.client.ID, joined.SocketID)
	assert.False(t, joined.IsInstructor)
}

func TestRelayReachesOnlyTarget(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)
	z := joinRoom(t, hub, "R1", "Z", false)
	other := joinRoom(t, hub, "R2", "W", false)

	x.send(protocol.TypeOffer, y.client.ID, protocol.SessionDescription{Type: "offer", SDP: "v=0", UserID: "X"})
	got := y.expect(protocol.TypeOffer)
	assert.Equal(t, x.client.ID, got.From)
	assert.Equal(t, "R1", got.RoomID)
	assert.Equal(t, "v=0", decode[protocol.SessionDescription](t, got).SDP)
	z.expectNone(protocol.TypeOffer)

	// A target in another room is not reachable.
	x.send(protocol.TypeOffer, other.client.ID, protocol.SessionDescription{SDP: "v=0"})
	other.expectNone(protocol.TypeOffer)

	// Unknown targets are dropped without affecting the room.
	x.send(protocol.TypeICECandidate, "nobody", protocol.CandidatePayload{})
	x.send(protocol.TypeChatMessage, "", protocol.Chat{Text: "still here"})
	y.expect(protocol.TypeChatMessage)
}

func TestChatUsesServerIdentity(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)

	y.send(protocol.TypeChatMessage, "", protocol.Chat{Text: "  hi  ", UserID: "X", UserName: "Impostor"})
	chat := decode[protocol.Chat](t, x.expect(protocol.TypeChatMessage))
	assert.Equal(t, "Y", chat.UserID)
	assert.Equal(t, "name-Y", chat.UserName)
	assert.Equal(t, "hi", chat.Text)
	assert.NotZero(t, chat.Timestamp)
	y.expectNone(protocol.TypeChatMessage)
}

func TestReactionsGoToOthers(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)

	y.send(protocol.TypeSendReaction, "", protocol.Reaction{Emoji: "👏"})
	r := decode[protocol.Reaction](t, x.expect(protocol.TypeShowReaction))
	assert.Equal(t, "👏", r.Emoji)
	assert.Equal(t, "name-Y", r.UserName)
	y.expectNone(protocol.TypeShowReaction)
}

func TestPollLifecycle(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)

	x.send(protocol.TypeLaunchPoll, "", protocol.PollLaunch{Question: "Ready?", Options: []string{"Yes", "No"}})
	launched := decode[protocol.PollSnapshot](t, y.expect(protocol.TypePollLaunched))
	assert.True(t, launched.Active)
	assert.Equal(t, []int{0, 0}, launched.Votes)

	y.send(protocol.TypeVotePoll, "", protocol.PollVote{OptionIdx: 0, UserID: "someone-else"})
	updated := decode[protocol.PollSnapshot](t, x.expect(protocol.TypePollUpdated))
	assert.Equal(t, []int{1, 0}, updated.Votes)

	// Second vote from the same user is ignored.
	y.send(protocol.TypeVotePoll, "", protocol.PollVote{OptionIdx: 1})
	x.send(protocol.TypeEndPoll, "", nil)

	for _, m := range []*member{x, y} {
		ended := decode[protocol.PollSnapshot](t, m.expect(protocol.TypePollEnded))
		assert.Equal(t, []int{1, 0}, ended.Votes)
		assert.False(t, ended.Active)
	}

	x.send(protocol.TypeLaunchPoll, "", protocol.PollLaunch{Question: "Again?", Options: []string{"Yes", "No"}})
	again := decode[protocol.PollSnapshot](t, y.expect(protocol.TypePollLaunched))
	assert.Equal(t, "Again?", again.Question)
}

func TestStudentCannotRunInstructorCommands(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)

	y.send(protocol.TypeLaunchPoll, "", protocol.PollLaunch{Question: "Q", Options: []string{"a", "b"}})
	y.send(protocol.TypeMuteUser, "", protocol.MuteTarget{UserID: "X"})
	y.send(protocol.TypeStartRecording, "", nil)
	x.expectNone(protocol.TypePollLaunched)

	room, err := hub.Room(context.Background(), "R1")
	require.NoError(t, err)
	require.NoError(t, room.WithPoll(context.Background(), func(s *roomstate.PollSlot) {
		assert.Nil(t, s.Active())
	}))
	require.NoError(t, room.WithMutedSet(context.Background(), func(m *roomstate.MuteSet) {
		assert.Empty(t, m.List())
	}))
}

func TestMuteAndUnmuteRequests(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)
	z := joinRoom(t, hub, "R1", "Z", false)

	// Not muted yet, so the request goes nowhere.
	y.send(protocol.TypeRequestUnmute, "", nil)
	x.expectNone(protocol.TypeRequestUnmute)

	x.send(protocol.TypeMuteUser, "", protocol.MuteTarget{UserID: "Y"})
	for _, m := range []*member{x, y, z} {
		state := decode[protocol.MuteState](t, m.expect(protocol.TypeMuteState))
		assert.Equal(t, []string{"Y"}, state.Muted)
	}

	y.send(protocol.TypeRequestUnmute, "", nil)
	req := decode[protocol.UnmuteRequest](t, x.expect(protocol.TypeRequestUnmute))
	assert.Equal(t, "Y", req.UserID)
	z.expectNone(protocol.TypeRequestUnmute)

	x.send(protocol.TypeMuteAll, "", nil)
	for _, m := range []*member{x, y, z} {
		state := decode[protocol.MuteState](t, m.expect(protocol.TypeMuteState))
		assert.Equal(t, []string{"Y", "Z"}, state.Muted)
	}

	x.send(protocol.TypeUnmuteAll, "", nil)
	for _, m := range []*member{x, y, z} {
		state := decode[protocol.MuteState](t, m.expect(protocol.TypeMuteState))
		assert.Empty(t, state.Muted)
	}
}

func TestHandsAreOrderedAndIdempotent(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)
	z := joinRoom(t, hub, "R1", "Z", false)

	y.send(protocol.TypeRaiseHand, "", nil)
	x.expect(protocol.TypeHandsUpdated)
	y.send(protocol.TypeRaiseHand, "", nil)
	z.send(protocol.TypeRaiseHand, "", nil)
	hands := decode[protocol.HandsUpdated](t, x.expect(protocol.TypeHandsUpdated))
	require.Len(t, hands.Hands, 2)
	assert.Equal(t, "Y", hands.Hands[0].UserID)
	assert.Equal(t, "Z", hands.Hands[1].UserID)

	// Students cannot lower someone else's hand; instructors can.
	z.send(protocol.TypeLowerHand, "", protocol.MuteTarget{UserID: "Y"})
	x.send(protocol.TypeLowerHand, "", protocol.MuteTarget{UserID: "Z"})
	hands = decode[protocol.HandsUpdated](t, x.expect(protocol.TypeHandsUpdated))
	require.Len(t, hands.Hands, 1)
	assert.Equal(t, "Y", hands.Hands[0].UserID)

	// Leaving lowers the hand.
	y.client.Disconnect()
	hands = decode[protocol.HandsUpdated](t, x.expect(protocol.TypeHandsUpdated))
	assert.Empty(t, hands.Hands)
}

func TestWhiteboardDeltasAndSync(t *testing.T) {
	hub := startHub(t, Options{WhiteboardSyncEvery: 2, WhiteboardSyncInterval: time.Hour})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)

	stroke := protocol.Stroke{From: protocol.Point{X: 1, Y: 1}, To: protocol.Point{X: 2, Y: 2}, Color: "red", Width: 3}
	x.send(protocol.TypeWhiteboardUpdate, "", protocol.WhiteboardUpdate{Strokes: []protocol.Stroke{stroke}})
	d1 := decode[protocol.WhiteboardDelta](t, y.expect(protocol.TypeWhiteboardDiff))
	assert.Equal(t, uint64(1), d1.FromSeq)

	x.expect(protocol.TypeWhiteboardDiff)
	y.send(protocol.TypeWhiteboardUpdate, "", protocol.WhiteboardUpdate{Strokes: []protocol.Stroke{stroke, stroke}})
	d2 := decode[protocol.WhiteboardDelta](t, x.expect(protocol.TypeWhiteboardDiff))
	assert.Equal(t, uint64(2), d2.FromSeq)

	sync := decode[protocol.WhiteboardSync](t, x.expect(protocol.TypeWhiteboardSync))
	assert.Equal(t, uint64(3), sync.Seq)
	assert.Len(t, sync.Strokes, 3)

	y.send(protocol.TypeWhiteboardClear, "", nil)
	cleared := decode[protocol.WhiteboardClear](t, x.expect(protocol.TypeWhiteboardClear))
	assert.Equal(t, uint64(1), cleared.Epoch)

	late := joinRoom(t, hub, "R1", "L", false)
	assert.Equal(t, uint64(1), late.joined.Snapshot.Whiteboard.Epoch)
	assert.Empty(t, late.joined.Snapshot.Whiteboard.Strokes)
}

func TestWhiteboardPeriodicSync(t *testing.T) {
	hub := startHub(t, Options{WhiteboardSyncInterval: 20 * time.Millisecond})
	x := joinRoom(t, hub, "R1", "X", true)

	x.send(protocol.TypeWhiteboardUpdate, "", protocol.WhiteboardUpdate{Strokes: []protocol.Stroke{{Width: 1}}})
	sync := decode[protocol.WhiteboardSync](t, x.expect(protocol.TypeWhiteboardSync))
	assert.Equal(t, uint64(1), sync.Seq)
}

func TestLateJoinerGetsSnapshot(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)

	x.send(protocol.TypeLaunchPoll, "", protocol.PollLaunch{Question: "Q", Options: []string{"a", "b"}})
	y.expect(protocol.TypePollLaunched)
	x.send(protocol.TypeMuteUser, "", protocol.MuteTarget{UserID: "Y"})
	y.expect(protocol.TypeMuteState)
	x.send(protocol.TypeStartRecording, "", nil)
	y.expect(protocol.TypeRecordingState)

	z := joinRoom(t, hub, "R1", "Z", false)
	snap := z.joined.Snapshot
	require.NotNil(t, snap.Poll)
	assert.Equal(t, "Q", snap.Poll.Question)
	assert.Equal(t, []string{"Y"}, snap.Muted)
	assert.True(t, snap.Recording)
	assert.Len(t, z.joined.Members, 2)
}

func TestDuplicateJoinEvictsOlderConnection(t *testing.T) {
	hub := startHub(t, Options{JoinPolicy: config.JoinPolicyEvict})
	x := joinRoom(t, hub, "R1", "X", true)
	first := joinRoom(t, hub, "R1", "Y", false)
	x.expect(protocol.TypeUserJoined)

	second := joinRoom(t, hub, "R1", "Y", false)
	first.expect(protocol.TypeEvicted)

	left := decode[protocol.Participant](t, x.expect(protocol.TypeUserLeft))
	assert.Equal(t, first.client.ID, left.SocketID)
	joined := decode[protocol.Participant](t, x.expect(protocol.TypeUserJoined))
	assert.Equal(t, second.client.ID, joined.SocketID)

	require.Len(t, second.joined.Members, 1)
	assert.Equal(t, "X", second.joined.Members[0].UserID)

	// The evicted connection is no longer routed.
	first.send(protocol.TypeChatMessage, "", protocol.Chat{Text: "ghost"})
	x.expectNone(protocol.TypeChatMessage)
}

func TestEvictionKeepsRaisedHand(t *testing.T) {
	hub := startHub(t, Options{JoinPolicy: config.JoinPolicyEvict})
	x := joinRoom(t, hub, "R1", "X", true)
	first := joinRoom(t, hub, "R1", "Y", false)

	first.send(protocol.TypeRaiseHand, "", nil)
	hands := decode[protocol.HandsUpdated](t, x.expect(protocol.TypeHandsUpdated))
	require.Len(t, hands.Hands, 1)

	second := joinRoom(t, hub, "R1", "Y", false)
	first.expect(protocol.TypeEvicted)
	x.expect(protocol.TypeUserJoined)

	require.Len(t, second.joined.Snapshot.Hands, 1)
	assert.Equal(t, "Y", second.joined.Snapshot.Hands[0].UserID)
	x.expectNone(protocol.TypeHandsUpdated)
}

func TestAttachAfterStop(t *testing.T) {
	hub := NewHub(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	assert.False(t, hub.Attach(NewClient(hub, nil)))
}

func TestDuplicateJoinCoexists(t *testing.T) {
	hub := startHub(t, Options{JoinPolicy: config.JoinPolicyCoexist})
	joinRoom(t, hub, "R1", "Y", false)
	second := joinRoom(t, hub, "R1", "Y", false)
	assert.Len(t, second.joined.Members, 1)

	stats, err := hub.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Members)
}

func TestRoomDeletedWhenEmpty(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	y := joinRoom(t, hub, "R1", "Y", false)

	x.send(protocol.TypeLaunchPoll, "", protocol.PollLaunch{Question: "Q", Options: []string{"a", "b"}})
	y.expect(protocol.TypePollLaunched)

	y.send(protocol.TypeLeaveRoom, "", nil)
	left := decode[protocol.Participant](t, x.expect(protocol.TypeUserLeft))
	assert.Equal(t, "Y", left.UserID)

	x.client.Disconnect()
	_, err := hub.Room(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// A new join starts from a fresh room.
	again := joinRoom(t, hub, "R1", "X", true)
	assert.Nil(t, again.joined.Snapshot.Poll)
}

func TestAdmissionDenied(t *testing.T) {
	denied := errors.New("not enrolled")
	hub := startHub(t, Options{Admission: admission.CheckerFunc(func(_ context.Context, req admission.Request) error {
		if req.UserID == "intruder" {
			return denied
		}
		return nil
	})})

	m := connect(t, hub)
	m.send(protocol.TypeJoinRoom, "", protocol.JoinRoom{RoomID: "R1", UserID: "intruder"})
	errMsg := decode[protocol.ErrorPayload](t, m.expect(protocol.TypeError))
	assert.Equal(t, "not enrolled", errMsg.Message)

	_, err := hub.Room(context.Background(), "R1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMessagesBeforeJoinAreDropped(t *testing.T) {
	hub := startHub(t, Options{})
	x := joinRoom(t, hub, "R1", "X", true)
	stranger := connect(t, hub)

	stranger.send(protocol.TypeOffer, x.client.ID, protocol.SessionDescription{SDP: "v=0"})
	x.expectNone(protocol.TypeOffer)
}

func TestStatsAndRoomAccessors(t *testing.T) {
	hub := startHub(t, Options{})
	joinRoom(t, hub, "b-room", "X", true)
	joinRoom(t, hub, "a-room", "Y", false)
	joinRoom(t, hub, "a-room", "Z", true)

	stats, err := hub.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "a-room", stats[0].Key)
	assert.Equal(t, 2, stats[0].Members)
	assert.Equal(t, 1, stats[0].Instructors)

	room, err := hub.Room(context.Background(), "a-room")
	require.NoError(t, err)
	members, err := room.Members(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "Y", members[0].UserID)

	require.NoError(t, room.WithRaisedHands(context.Background(), func(q *roomstate.HandQueue) {
		q.Raise(protocol.Hand{UserID: "Y"})
	}))
	require.NoError(t, room.WithRaisedHands(context.Background(), func(q *roomstate.HandQueue) {
		assert.True(t, q.Raised("Y"))
	}))
	require.NoError(t, room.WithWhiteboard(context.Background(), func(w *roomstate.Whiteboard) {
		assert.Zero(t, w.Len())
	}))
}
