package signaling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/liveclass/classroom/internal/protocol"
	"github.com/liveclass/classroom/internal/recording"
	"github.com/liveclass/classroom/internal/roomstate"
)

var (
	ErrHubStopped   = errors.New("hub stopped")
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomClosed   = errors.New("room closed")
)

const (
	roomInbox      = 256
	triggerTimeout = 5 * time.Second
)

// Room is the actor that owns one classroom's members and shared state.
// Every method below that is not exported runs on the room goroutine.
type Room struct {
	Key string

	inbox chan func()
	quit  chan struct{}

	members map[*Client]protocol.Participant
	byID    map[string]*Client
	order   []*Client

	state *roomstate.State

	syncEvery    int
	syncInterval time.Duration
	recorder     recording.Trigger
	logger       *slog.Logger
}

func newRoom(key string, opts Options) *Room {
	return &Room{
		Key:          key,
		inbox:        make(chan func(), roomInbox),
		quit:         make(chan struct{}),
		members:      make(map[*Client]protocol.Participant),
		byID:         make(map[string]*Client),
		state:        roomstate.New(),
		syncEvery:    opts.WhiteboardSyncEvery,
		syncInterval: opts.WhiteboardSyncInterval,
		recorder:     opts.Recorder,
		logger:       opts.Logger.With("room", key),
	}
}

func (r *Room) run() {
	ticker := time.NewTicker(r.syncInterval)
	defer ticker.Stop()
	defer r.closeDown()

	for {
		select {
		case fn := <-r.inbox:
			fn()
		case <-ticker.C:
			r.flushWhiteboard()
		case <-r.quit:
			return
		}
	}
}

// stop is called by the hub once, after the last member left.
func (r *Room) stop() {
	close(r.quit)
}

func (r *Room) closeDown() {
	if r.state.Recording {
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()
		if err := r.recorder.Stop(ctx, r.Key); err != nil {
			r.logger.Warn("Failed to stop recording", "error", err)
		}
	}
}

// enqueue schedules fn on the room goroutine. It reports false once the room
// has stopped.
func (r *Room) enqueue(fn func()) bool {
	select {
	case r.inbox <- fn:
		return true
	case <-r.quit:
		return false
	}
}

// do runs fn against the room state on the room goroutine and waits for it.
func (r *Room) do(ctx context.Context, fn func(s *roomstate.State)) error {
	done := make(chan struct{})
	task := func() {
		fn(r.state)
		close(done)
	}

	select {
	case r.inbox <- task:
	case <-r.quit:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-r.quit:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithPoll runs fn with exclusive access to the room's poll slot.
func (r *Room) WithPoll(ctx context.Context, fn func(*roomstate.PollSlot)) error {
	return r.do(ctx, func(s *roomstate.State) { fn(&s.Poll) })
}

// WithWhiteboard runs fn with exclusive access to the stroke log.
func (r *Room) WithWhiteboard(ctx context.Context, fn func(*roomstate.Whiteboard)) error {
	return r.do(ctx, func(s *roomstate.State) { fn(&s.Whiteboard) })
}

// WithRaisedHands runs fn with exclusive access to the raised-hand list.
func (r *Room) WithRaisedHands(ctx context.Context, fn func(*roomstate.HandQueue)) error {
	return r.do(ctx, func(s *roomstate.State) { fn(&s.Hands) })
}

// WithMutedSet runs fn with exclusive access to the mute set.
func (r *Room) WithMutedSet(ctx context.Context, fn func(*roomstate.MuteSet)) error {
	return r.do(ctx, func(s *roomstate.State) { fn(&s.Muted) })
}

// Members returns the room's participants in join order.
func (r *Room) Members(ctx context.Context) ([]protocol.Participant, error) {
	var out []protocol.Participant
	err := r.do(ctx, func(*roomstate.State) { out = r.participants(nil) })
	return out, err
}

func (r *Room) join(c *Client, p protocol.Participant) {
	if _, ok := r.members[c]; !ok {
		r.order = append(r.order, c)
		r.byID[c.ID] = c
		r.broadcast(protocol.TypeUserJoined, "", p, c)
	}
	r.members[c] = p

	r.send(c, protocol.TypeRoomJoined, protocol.RoomJoined{
		ConnectionID: c.ID,
		Members:      r.participants(c),
		Snapshot:     r.state.Snapshot(),
	})
}

func (r *Room) leave(c *Client, evicted bool) {
	p, ok := r.members[c]
	if !ok {
		return
	}
	delete(r.members, c)
	delete(r.byID, c.ID)
	for i, m := range r.order {
		if m == c {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if evicted {
		r.send(c, protocol.TypeEvicted, protocol.Evicted{Reason: "joined from another connection"})
	}
	r.broadcast(protocol.TypeUserLeft, "", p, nil)

	// An evicted user is rejoining from another connection and keeps the hand.
	if !evicted && !r.hasUser(p.UserID) && r.state.Hands.Lower(p.UserID) {
		r.broadcastHands()
	}
}

// participants lists members in join order, skipping except.
func (r *Room) participants(except *Client) []protocol.Participant {
	out := make([]protocol.Participant, 0, len(r.order))
	for _, c := range r.order {
		if c != except {
			out = append(out, r.members[c])
		}
	}
	return out
}

func (r *Room) hasUser(userID string) bool {
	for _, p := range r.members {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (r *Room) newMessage(t, from string, payload any) *protocol.Message {
	msg, err := protocol.NewMessage(t, payload)
	if err != nil {
		r.logger.Error("Failed to build message", "type", t, "error", err)
		return nil
	}
	msg.RoomID = r.Key
	msg.From = from
	return msg
}

func (r *Room) send(c *Client, t string, payload any) {
	if msg := r.newMessage(t, "", payload); msg != nil {
		c.Deliver(msg)
	}
}

// broadcast delivers one message to every member except except, which may
// be nil.
func (r *Room) broadcast(t, from string, payload any, except *Client) {
	msg := r.newMessage(t, from, payload)
	if msg == nil {
		return
	}
	for _, c := range r.order {
		if c != except {
			c.Deliver(msg)
		}
	}
}
