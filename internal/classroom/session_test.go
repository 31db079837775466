package classroom

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveclass/classroom/internal/admission"
	"github.com/liveclass/classroom/internal/media"
	"github.com/liveclass/classroom/internal/mesh"
	"github.com/liveclass/classroom/internal/mesh/meshtest"
	"github.com/liveclass/classroom/internal/protocol"
	"github.com/liveclass/classroom/internal/signaling"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// loopback is a Transport straight into an in-process hub.
type loopback struct {
	client *signaling.Client
}

func (l *loopback) Send(msg *protocol.Message) error {
	l.client.Submit(msg)
	return nil
}

func (l *loopback) Incoming() <-chan *protocol.Message { return l.client.Outbox() }

func (l *loopback) Close() { l.client.Disconnect() }

func startHub(t *testing.T, opts signaling.Options) *signaling.Hub {
	t.Helper()
	opts.Logger = discard
	hub := signaling.NewHub(opts)
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

type participant struct {
	*Session
	factory  *meshtest.Factory
	capturer *media.SyntheticCapturer
}

func newParticipant(t *testing.T, hub *signaling.Hub, user string, instructor bool, autoConnect bool) *participant {
	t.Helper()
	factory := meshtest.NewFactory(autoConnect)
	capturer := media.NewSyntheticCapturer(user)
	s := New(Options{
		RoomID:     "algebra",
		UserID:     user,
		UserName:   "name-" + user,
		Instructor: instructor,
		Transport:  &loopback{client: signaling.NewLoopbackClient(hub)},
		Factory:    factory.New,
		Capturer:   capturer,
		Logger:     discard,
	})
	t.Cleanup(s.Leave)
	return &participant{Session: s, factory: factory, capturer: capturer}
}

func join(t *testing.T, hub *signaling.Hub, user string, instructor bool) *participant {
	t.Helper()
	p := newParticipant(t, hub, user, instructor, true)
	require.NoError(t, p.Join(context.Background()))
	return p
}

func eventually(t *testing.T, cond func(v View) bool, s *Session, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.Snapshot()) }, waitFor, tick, msg)
}

func TestScenarioJoinOfferAnswerConnected(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)

	sv := student.Snapshot()
	require.Len(t, sv.Members, 1)
	assert.Equal(t, "teacher", sv.Members[0].UserID)
	assert.NotEmpty(t, sv.ConnectionID)

	eventually(t, func(v View) bool { return len(v.Members) == 1 }, teacher.Session, "teacher sees the student")

	connected := func(v View) bool {
		return len(v.Links) == 1 && v.Links[0].State == webrtc.PeerConnectionStateConnected
	}
	eventually(t, connected, student.Session, "student link connects")
	eventually(t, connected, teacher.Session, "teacher link connects")

	assert.Equal(t, mesh.RoleInitiator, student.Snapshot().Links[0].Role)
	assert.Equal(t, mesh.RoleResponder, teacher.Snapshot().Links[0].Role)

	// Both tracks were attached to the link.
	tv := teacher.Snapshot()
	peer := teacher.factory.Last(tv.Links[0].RemoteID)
	require.NotNil(t, peer)
	assert.Len(t, peer.Senders(), 2)
}

func TestScenarioPollVotesAndRelaunch(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)

	require.NoError(t, teacher.LaunchPoll("2+2?", []string{"4", "5"}))
	eventually(t, func(v View) bool { return v.Poll != nil }, student.Session, "poll reaches student")

	require.NoError(t, student.Vote(0))
	assert.ErrorIs(t, student.Vote(1), ErrAlreadyVoted)
	assert.True(t, student.Snapshot().Voted)

	eventually(t, func(v View) bool {
		return v.Poll != nil && len(v.Poll.Votes) == 2 && v.Poll.Votes[0] == 1 && v.Poll.Votes[1] == 0
	}, teacher.Session, "teacher sees one vote")

	require.NoError(t, teacher.EndPoll())
	eventually(t, func(v View) bool { return v.Poll == nil && v.LastPoll != nil }, student.Session, "poll ends")
	assert.Equal(t, []int{1, 0}, student.Snapshot().LastPoll.Votes)
	assert.ErrorIs(t, student.Vote(0), ErrNoActivePoll)

	require.NoError(t, teacher.LaunchPoll("Next?", []string{"a", "b", "c"}))
	eventually(t, func(v View) bool { return v.Poll != nil && v.Poll.Question == "Next?" }, student.Session, "second poll")
	assert.False(t, student.Snapshot().Voted)
}

func TestVoteRejectsUnknownOption(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)

	require.NoError(t, teacher.LaunchPoll("Ready?", []string{"Yes", "No"}))
	eventually(t, func(v View) bool { return v.Poll != nil }, student.Session, "poll reaches student")

	assert.ErrorIs(t, student.Vote(4), ErrNoSuchOption)
	assert.ErrorIs(t, student.Vote(-1), ErrNoSuchOption)
	assert.False(t, student.Snapshot().Voted)

	require.NoError(t, student.Vote(1))
	eventually(t, func(v View) bool {
		return v.Poll != nil && len(v.Poll.Votes) == 2 && v.Poll.Votes[1] == 1
	}, teacher.Session, "the retried vote counts")
	assert.True(t, student.Snapshot().Voted)
}

func TestLaunchPollValidatesLocally(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)

	err := teacher.LaunchPoll("  ", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrInvalidPoll)

	err = teacher.LaunchPoll("Q", []string{"a", " "})
	assert.ErrorIs(t, err, ErrInvalidPoll)
}

func TestScenarioPeerLeavesMidNegotiation(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	x := newParticipant(t, hub, "x", true, false)
	require.NoError(t, x.Join(context.Background()))
	y := newParticipant(t, hub, "y", false, false)
	require.NoError(t, y.Join(context.Background()))

	yConn := y.Snapshot().ConnectionID
	eventually(t, func(v View) bool { return len(v.Links) == 1 }, x.Session, "x answers y")
	peer := x.factory.Last(yConn)
	require.NotNil(t, peer)

	y.Leave()

	eventually(t, func(v View) bool { return len(v.Members) == 0 && len(v.Links) == 0 }, x.Session, "x drops y")
	assert.True(t, peer.Closed())

	msg, err := protocol.NewMessage(protocol.TypeICECandidate, protocol.CandidatePayload{
		Candidate: protocol.ICECandidate{Candidate: "candidate:late"},
	})
	require.NoError(t, err)
	msg.From = yConn
	x.handle(msg)

	assert.Equal(t, 0, x.mesh.Pending(yConn))
	assert.Len(t, x.factory.Peers(yConn), 1)
}

func TestMuteAuthority(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)

	require.NoError(t, teacher.MuteUser("student"))
	eventually(t, func(v View) bool { return v.Media.MutedByInstructor && !v.Media.Audio }, student.Session, "student is muted")

	_, err := student.ToggleAudio()
	assert.ErrorIs(t, err, media.ErrMutedByInstructor)

	require.NoError(t, student.RequestUnmute())
	eventually(t, func(v View) bool {
		return len(v.UnmuteRequests) == 1 && v.UnmuteRequests[0].UserID == "student"
	}, teacher.Session, "teacher gets the request")

	// A student cannot unmute anyone.
	require.NoError(t, student.UnmuteUser("student"))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, student.Snapshot().Media.MutedByInstructor)

	require.NoError(t, teacher.UnmuteUser("student"))
	eventually(t, func(v View) bool { return !v.Media.MutedByInstructor && v.Media.Audio }, student.Session, "student is unmuted")
	eventually(t, func(v View) bool { return len(v.UnmuteRequests) == 0 }, teacher.Session, "request cleared")
}

func TestMuteAllSkipsInstructors(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)

	require.NoError(t, teacher.MuteAll())
	eventually(t, func(v View) bool { return v.Media.MutedByInstructor }, student.Session, "student muted")
	assert.False(t, teacher.Snapshot().Media.MutedByInstructor)
	eventually(t, func(v View) bool { return len(v.Muted) == 1 && v.Muted[0] == "student" }, teacher.Session, "teacher sees mute set")

	require.NoError(t, teacher.UnmuteAll())
	eventually(t, func(v View) bool { return !v.Media.MutedByInstructor }, student.Session, "student unmuted")
}

func TestLateJoinerGetsMuteFromSnapshot(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)

	require.NoError(t, teacher.MuteUser("student"))
	eventually(t, func(v View) bool { return v.Media.MutedByInstructor }, student.Session, "student muted")

	again := join(t, hub, "student", false)
	v := again.Snapshot()
	assert.True(t, v.Media.MutedByInstructor)
	assert.False(t, v.Media.Audio)
}

func TestWhiteboardAndHands(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)

	stroke := protocol.Stroke{From: protocol.Point{X: 0, Y: 0}, To: protocol.Point{X: 1, Y: 1}, Color: "#fff", Width: 2}
	require.NoError(t, teacher.Draw(stroke, stroke))
	eventually(t, func(v View) bool { return v.Whiteboard.Seq == 2 }, student.Session, "strokes reach student")
	eventually(t, func(v View) bool { return len(v.Whiteboard.Strokes) == 2 }, teacher.Session, "strokes echo to sender")

	require.NoError(t, teacher.ClearBoard())
	eventually(t, func(v View) bool {
		return v.Whiteboard.Epoch == 1 && len(v.Whiteboard.Strokes) == 0
	}, student.Session, "board cleared")

	require.NoError(t, student.RaiseHand())
	eventually(t, func(v View) bool { return len(v.Hands) == 1 }, teacher.Session, "hand raised")
	require.NoError(t, teacher.LowerHand("student"))
	eventually(t, func(v View) bool { return len(v.Hands) == 0 }, student.Session, "hand lowered")
}

func TestChatAndReactions(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)

	assert.ErrorIs(t, student.SendChat("   "), ErrEmptyMessage)
	require.NoError(t, student.SendChat(" hello "))
	eventually(t, func(v View) bool { return len(v.Chat) == 1 }, teacher.Session, "chat arrives")
	line := teacher.Snapshot().Chat[0]
	assert.Equal(t, "hello", line.Text)
	assert.Equal(t, "name-student", line.UserName)

	own := student.Snapshot().Chat
	require.Len(t, own, 1, "sender sees its own line")
	assert.Equal(t, "hello", own[0].Text)
	assert.Equal(t, "student", own[0].UserID)
	assert.Equal(t, "name-student", own[0].UserName)
	assert.NotZero(t, own[0].Timestamp)

	require.NoError(t, student.SendReaction("👏"))
	eventually(t, func(v View) bool { return len(v.Reactions) == 1 }, teacher.Session, "reaction arrives")
	mine := student.Snapshot().Reactions
	require.Len(t, mine, 1, "sender sees its own reaction")
	assert.Equal(t, "👏", mine[0].Emoji)

	// The room does not echo the sender's own messages back.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, student.Snapshot().Chat, 1)
	assert.Len(t, student.Snapshot().Reactions, 1)
}

func TestRecordingState(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)

	require.NoError(t, teacher.StartRecording())
	eventually(t, func(v View) bool { return v.Recording }, student.Session, "recording on")
	require.NoError(t, teacher.StopRecording())
	eventually(t, func(v View) bool { return !v.Recording }, student.Session, "recording off")
}

func TestEvictedSessionEnds(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	first := join(t, hub, "student", false)
	join(t, hub, "student", false)

	select {
	case <-first.Done():
	case <-time.After(waitFor):
		t.Fatal("evicted session did not end")
	}
	assert.ErrorIs(t, first.Err(), ErrEvicted)
	assert.ErrorIs(t, first.RaiseHand(), ErrEvicted)
}

func TestJoinRejected(t *testing.T) {
	hub := startHub(t, signaling.Options{
		Admission: admission.CheckerFunc(func(context.Context, admission.Request) error {
			return admission.ErrNotEnrolled
		}),
	})
	p := newParticipant(t, hub, "stranger", false, true)

	err := p.Join(context.Background())
	assert.ErrorIs(t, err, ErrJoinRejected)
	assert.Equal(t, media.State{}, p.media.State())
}

func TestJoinFailsWhenMediaDenied(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	p := newParticipant(t, hub, "student", false, true)
	p.capturer.Fail(media.KindMicrophone, media.ErrPermissionDenied)

	err := p.Join(context.Background())
	assert.ErrorIs(t, err, media.ErrPermissionDenied)
}

func TestLeaveTearsDown(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	teacher := join(t, hub, "teacher", true)
	student := join(t, hub, "student", false)
	eventually(t, func(v View) bool { return len(v.Links) == 1 }, teacher.Session, "linked")

	teacherConn := teacher.Snapshot().ConnectionID
	peer := student.factory.Last(teacherConn)
	require.NotNil(t, peer)

	student.Leave()

	assert.True(t, peer.Closed())
	assert.Empty(t, student.Snapshot().Links)
	assert.Equal(t, media.State{}, student.media.State())
	assert.ErrorIs(t, student.Err(), ErrLeft)
	eventually(t, func(v View) bool { return len(v.Members) == 0 }, teacher.Session, "teacher sees leave")
}

func TestCommandsBeforeJoin(t *testing.T) {
	hub := startHub(t, signaling.Options{})
	p := newParticipant(t, hub, "student", false, true)
	assert.ErrorIs(t, p.RaiseHand(), ErrNotJoined)
}

// recordingTransport keeps what the session sends.
type recordingTransport struct {
	mu   sync.Mutex
	sent []*protocol.Message
	in   chan *protocol.Message
	once sync.Once
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{in: make(chan *protocol.Message)}
}

func (r *recordingTransport) Send(msg *protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) Incoming() <-chan *protocol.Message { return r.in }

func (r *recordingTransport) Close() { r.once.Do(func() { close(r.in) }) }

func (r *recordingTransport) count(t string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.sent {
		if m.Type == t {
			n++
		}
	}
	return n
}

func message(t *testing.T, typ string, payload any) *protocol.Message {
	t.Helper()
	msg, err := protocol.NewMessage(typ, payload)
	require.NoError(t, err)
	return msg
}

func TestWhiteboardGapRequestsOneSync(t *testing.T) {
	tr := newRecordingTransport()
	s := New(Options{RoomID: "r", UserID: "u", Transport: tr, Factory: meshtest.NewFactory(false).New, Capturer: media.NewSyntheticCapturer("u"), Logger: discard})
	defer s.Leave()

	stroke := func(seq uint64) protocol.Stroke { return protocol.Stroke{Seq: seq} }

	s.handle(message(t, protocol.TypeWhiteboardDiff, protocol.WhiteboardDelta{FromSeq: 1, Strokes: []protocol.Stroke{stroke(1)}}))
	assert.Equal(t, 0, tr.count(protocol.TypeWhiteboardSyncRequest))

	s.handle(message(t, protocol.TypeWhiteboardDiff, protocol.WhiteboardDelta{FromSeq: 3, Strokes: []protocol.Stroke{stroke(3)}}))
	s.handle(message(t, protocol.TypeWhiteboardDiff, protocol.WhiteboardDelta{FromSeq: 4, Strokes: []protocol.Stroke{stroke(4)}}))
	assert.Equal(t, 1, tr.count(protocol.TypeWhiteboardSyncRequest))
	assert.Equal(t, uint64(1), s.Snapshot().Whiteboard.Seq)

	s.handle(message(t, protocol.TypeWhiteboardSync, protocol.WhiteboardSync{Seq: 4, Strokes: []protocol.Stroke{stroke(1), stroke(2), stroke(3), stroke(4)}}))
	assert.Equal(t, uint64(4), s.Snapshot().Whiteboard.Seq)

	s.handle(message(t, protocol.TypeWhiteboardDiff, protocol.WhiteboardDelta{Epoch: 1, FromSeq: 1, Strokes: []protocol.Stroke{stroke(1)}}))
	assert.Equal(t, 2, tr.count(protocol.TypeWhiteboardSyncRequest))
}

func TestReactionsExpire(t *testing.T) {
	now := time.Unix(1000, 0)
	tr := newRecordingTransport()
	s := New(Options{
		RoomID: "r", UserID: "u", Transport: tr,
		Factory:  meshtest.NewFactory(false).New,
		Capturer: media.NewSyntheticCapturer("u"),
		Logger:   discard,
		Now:      func() time.Time { return now },
	})
	defer s.Leave()

	s.handle(message(t, protocol.TypeShowReaction, protocol.Reaction{Emoji: "🎉", UserName: "a"}))
	assert.Len(t, s.Snapshot().Reactions, 1)

	now = now.Add(reactionTTL)
	assert.Empty(t, s.Snapshot().Reactions)
}

func TestJoinCancelled(t *testing.T) {
	tr := newRecordingTransport()
	s := New(Options{RoomID: "r", UserID: "u", Transport: tr, Factory: meshtest.NewFactory(false).New, Capturer: media.NewSyntheticCapturer("u"), Logger: discard})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Join(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, tr.count(protocol.TypeLeaveRoom))
}
