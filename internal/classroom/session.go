// Package classroom is the client side of a live class: it joins a room over
// the signaling channel, keeps local replicas of the shared room state and
// wires the peer mesh to the local media.
package classroom

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/liveclass/classroom/internal/media"
	"github.com/liveclass/classroom/internal/mesh"
	"github.com/liveclass/classroom/internal/protocol"
)

// Transport carries signaling messages. Incoming is closed when the
// connection ends.
type Transport interface {
	Send(msg *protocol.Message) error
	Incoming() <-chan *protocol.Message
	Close()
}

type Options struct {
	RoomID     string
	UserID     string
	UserName   string
	Instructor bool

	Transport Transport
	Factory   mesh.PeerFactory
	Capturer  media.Capturer

	NegotiationTimeout time.Duration
	MaxRenegotiations  int

	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// View is a copy of everything the session knows, for rendering.
type View struct {
	RoomID       string
	ConnectionID string
	Self         protocol.Participant
	Members      []protocol.Participant
	Links        []mesh.LinkInfo
	RemoteMedia  map[string][]string
	Media        media.State

	Poll     *protocol.PollSnapshot
	Voted    bool
	LastPoll *protocol.PollSnapshot

	Hands          []protocol.Hand
	Muted          []string
	Whiteboard     protocol.WhiteboardSync
	Reactions      []protocol.Reaction
	Chat           []protocol.Chat
	UnmuteRequests []protocol.UnmuteRequest
	Recording      bool
	LastError      string
}

type Session struct {
	opts   Options
	self   protocol.Participant
	logger *slog.Logger

	transport Transport
	media     *media.Controller
	mesh      *mesh.Orchestrator

	mu             sync.Mutex
	connID         string
	joined         bool
	roster         roster
	poll           *protocol.PollSnapshot
	votedPoll      string
	lastPoll       *protocol.PollSnapshot
	hands          []protocol.Hand
	muted          []string
	board          boardReplica
	reactions      reactions
	chat           chatLog
	unmuteRequests []protocol.UnmuteRequest
	recording      bool
	remoteMedia    map[string][]string
	lastError      string
	err            error

	joinResult chan error
	updates    chan struct{}
	done       chan struct{}
	endOnce    sync.Once
	runOnce    sync.Once
	stopped    chan struct{}
}

func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.With("room", opts.RoomID, "user", opts.UserID)

	s := &Session{
		opts: opts,
		self: protocol.Participant{
			UserID:       opts.UserID,
			UserName:     opts.UserName,
			IsInstructor: opts.Instructor,
		},
		logger:      logger,
		transport:   opts.Transport,
		media:       media.NewController(opts.Capturer, opts.UserID, logger),
		remoteMedia: make(map[string][]string),
		joinResult:  make(chan error, 1),
		updates:     make(chan struct{}, 1),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	s.mesh = mesh.New(mesh.Options{
		RoomID:             opts.RoomID,
		SelfUserID:         opts.UserID,
		Factory:            opts.Factory,
		Signaler:           opts.Transport,
		Tracks:             s.media,
		NegotiationTimeout: opts.NegotiationTimeout,
		MaxRenegotiations:  opts.MaxRenegotiations,
		OnStateChange: func(remoteID string, state webrtc.PeerConnectionState) {
			s.logger.Debug("Peer state changed", "peer", remoteID, "state", state.String())
			s.notify()
		},
		OnRemoteTrack: s.remoteTrack,
		OnPeerRemoved: func(remoteID string) {
			s.mu.Lock()
			delete(s.remoteMedia, remoteID)
			s.mu.Unlock()
		},
		Logger: logger,
	})
	s.media.Attach(s.mesh)
	s.media.OnChange(func(media.State) { s.notify() })
	return s
}

// Join acquires local media, joins the room and waits for the server to
// confirm. The session runs until Leave or until the connection ends.
func (s *Session) Join(ctx context.Context) error {
	if err := s.media.Start(ctx); err != nil {
		return NewError("start media", err)
	}

	s.runOnce.Do(func() { go s.run() })

	if err := s.send(protocol.TypeJoinRoom, protocol.JoinRoom{
		RoomID:       s.opts.RoomID,
		UserID:       s.opts.UserID,
		UserName:     s.opts.UserName,
		IsInstructor: s.opts.Instructor,
	}); err != nil {
		s.end(ErrDisconnected)
		return NewError("join room", err)
	}

	select {
	case err := <-s.joinResult:
		if err != nil {
			s.end(err)
			return NewError("join room", err)
		}
		return nil
	case <-s.done:
		return NewError("join room", s.Err())
	case <-ctx.Done():
		s.Leave()
		return NewError("join room", ctx.Err())
	}
}

// run dispatches incoming messages until the transport closes.
func (s *Session) run() {
	defer close(s.stopped)
	for msg := range s.transport.Incoming() {
		s.handle(msg)
	}
	s.end(ErrDisconnected)
}

// Leave closes every peer link, stops local media and tells the server.
func (s *Session) Leave() {
	s.end(ErrLeft)
	// Nothing to wait for if Join never got as far as starting the reader.
	s.runOnce.Do(func() { close(s.stopped) })
	select {
	case <-s.stopped:
	case <-time.After(time.Second):
		s.logger.Debug("Transport did not close in time")
	}
}

// end tears the session down once. The first reason sticks.
func (s *Session) end(reason error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = reason
		s.mu.Unlock()

		s.mesh.Close()
		s.media.Close()
		if reason == ErrLeft {
			if err := s.send(protocol.TypeLeaveRoom, nil); err != nil {
				s.logger.Debug("Failed to send leave", "error", err)
			}
		}
		s.transport.Close()

		select {
		case s.joinResult <- reason:
		default:
		}
		close(s.done)
		s.notify()
	})
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err reports why the session ended, or nil while it runs.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Updates signals that the view changed. Signals coalesce.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) Snapshot() View {
	links := s.mesh.Links()
	mediaState := s.media.State()
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	self := s.self
	self.SocketID = s.connID

	remote := make(map[string][]string, len(s.remoteMedia))
	for id, kinds := range s.remoteMedia {
		remote[id] = append([]string(nil), kinds...)
	}

	v := View{
		RoomID:         s.opts.RoomID,
		ConnectionID:   s.connID,
		Self:           self,
		Members:        s.roster.list(),
		Links:          links,
		RemoteMedia:    remote,
		Media:          mediaState,
		Voted:          s.poll != nil && s.votedPoll == s.poll.ID,
		Hands:          append([]protocol.Hand(nil), s.hands...),
		Muted:          append([]string(nil), s.muted...),
		Whiteboard:     s.board.view(),
		Reactions:      s.reactions.list(now),
		Chat:           s.chat.list(),
		UnmuteRequests: append([]protocol.UnmuteRequest(nil), s.unmuteRequests...),
		Recording:      s.recording,
		LastError:      s.lastError,
	}
	if s.poll != nil {
		p := *s.poll
		v.Poll = &p
	}
	if s.lastPoll != nil {
		p := *s.lastPoll
		v.LastPoll = &p
	}
	return v
}

func (s *Session) remoteTrack(remoteID string, track *webrtc.TrackRemote) {
	s.mu.Lock()
	s.remoteMedia[remoteID] = append(s.remoteMedia[remoteID], track.Kind().String())
	s.mu.Unlock()
	s.notify()

	go drainRemote(track)
}

// drainRemote reads a remote track so its buffers do not fill. The terminal
// client has nothing to render it on.
func drainRemote(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func (s *Session) send(t string, payload any) error {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		return err
	}
	msg.RoomID = s.opts.RoomID
	return s.transport.Send(msg)
}
