package signaling

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/liveclass/classroom/internal/admission"
	"github.com/liveclass/classroom/internal/config"
	"github.com/liveclass/classroom/internal/protocol"
	"github.com/liveclass/classroom/internal/recording"
)

// Inbound is a message read from a client, on its way to a room.
type Inbound struct {
	Client  *Client
	Message *protocol.Message
}

// Options configures a Hub. Zero values fall back to defaults.
type Options struct {
	JoinPolicy             config.JoinPolicy
	WhiteboardSyncEvery    int
	WhiteboardSyncInterval time.Duration
	Admission              admission.Checker
	Recorder               recording.Trigger
	Logger                 *slog.Logger
}

// RoomStats is a point-in-time view of one room, served on /rooms.
type RoomStats struct {
	Key         string    `json:"key"`
	Members     int       `json:"members"`
	Instructors int       `json:"instructors"`
	CreatedAt   time.Time `json:"createdAt"`
}

// roomEntry is the hub's registry record for one room.
type roomEntry struct {
	room    *Room
	clients map[*Client]protocol.Participant
	created time.Time
}

// Hub is the connection registry of the signaling server.
// It tracks which clients belong to which rooms and forwards their messages
// to the room actors. All registry state is owned by the Run goroutine.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries every message read from a client.
	Inbound chan *Inbound

	statsReq chan chan []RoomStats
	roomReq  chan roomRequest
	done     chan struct{}

	clients map[*Client]struct{}
	rooms   map[string]*roomEntry
	joined  map[*Client]map[string]struct{}

	opts   Options
	logger *slog.Logger
	wg     sync.WaitGroup
}

type roomRequest struct {
	key   string
	reply chan *Room
}

// NewHub creates a new Hub instance.
func NewHub(opts Options) *Hub {
	if opts.JoinPolicy == "" {
		opts.JoinPolicy = config.JoinPolicyEvict
	}
	if opts.WhiteboardSyncEvery <= 0 {
		opts.WhiteboardSyncEvery = config.DefaultWhiteboardSyncEvery
	}
	if opts.WhiteboardSyncInterval <= 0 {
		opts.WhiteboardSyncInterval = config.DefaultWhiteboardSyncInterval
	}
	if opts.Admission == nil {
		opts.Admission = admission.AllowAll{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = recording.LogTrigger{Logger: opts.Logger}
	}

	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Inbound, 256),
		statsReq:   make(chan chan []RoomStats),
		roomReq:    make(chan roomRequest),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]*roomEntry),
		joined:     make(map[*Client]map[string]struct{}),
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Run starts the hub's main processing loop. It returns when ctx is done,
// after stopping every room.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.clients[client] = struct{}{}
			h.logger.Debug("Client registered", "conn", client.ID)

		case client := <-h.Unregister:
			h.logger.Debug("Client unregistered", "conn", client.ID)
			for key := range h.joined[client] {
				h.leave(client, key, false)
			}
			delete(h.joined, client)
			delete(h.clients, client)
			client.Close()

		case in := <-h.Inbound:
			h.route(in)

		case reply := <-h.statsReq:
			reply <- h.stats()

		case req := <-h.roomReq:
			var room *Room
			if entry, ok := h.rooms[req.key]; ok {
				room = entry.room
			}
			req.reply <- room
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for key, entry := range h.rooms {
		entry.room.stop()
		delete(h.rooms, key)
	}
	for client := range h.clients {
		client.Close()
	}
	h.wg.Wait()
}

// route handles registry messages itself and hands the rest to the room the
// sender belongs to.
func (h *Hub) route(in *Inbound) {
	client, msg := in.Client, in.Message

	switch msg.Type {
	case protocol.TypeJoinRoom:
		h.join(client, msg)

	case protocol.TypeLeaveRoom:
		if key, ok := h.resolveRoom(client, msg.RoomID); ok {
			h.leave(client, key, false)
		}

	default:
		key, ok := h.resolveRoom(client, msg.RoomID)
		if !ok {
			h.logger.Debug("Dropping message from non-member", "conn", client.ID, "type", msg.Type, "room", msg.RoomID)
			return
		}
		room := h.rooms[key].room
		room.enqueue(func() { room.handle(client, msg) })
	}
}

func (h *Hub) join(client *Client, msg *protocol.Message) {
	var req protocol.JoinRoom
	if err := msg.Decode(&req); err != nil {
		client.sendError("invalid join-room payload")
		return
	}
	key := msg.RoomID
	if key == "" {
		key = req.RoomID
	}
	if key == "" || req.UserID == "" {
		client.sendError("roomId and userId are required")
		return
	}

	entry, ok := h.rooms[key]
	if !ok {
		entry = h.openRoom(key)
	}

	p := protocol.Participant{
		SocketID:     client.ID,
		UserID:       req.UserID,
		UserName:     req.UserName,
		IsInstructor: req.IsInstructor,
	}

	if h.opts.JoinPolicy == config.JoinPolicyEvict {
		for other, op := range entry.clients {
			if other != client && op.UserID == p.UserID {
				h.logger.Info("Evicting older connection", "room", key, "user", p.UserID, "conn", other.ID)
				h.detach(key, entry, other, true)
			}
		}
	}

	entry.clients[client] = p
	rooms, ok := h.joined[client]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[client] = rooms
	}
	rooms[key] = struct{}{}

	h.logger.Info("Client joined room", "room", key, "conn", client.ID, "user", p.UserID, "instructor", p.IsInstructor)
	room := entry.room
	room.enqueue(func() { room.join(client, p) })
}

// leave removes client from one room and deletes the room once empty.
func (h *Hub) leave(client *Client, key string, evicted bool) {
	entry, ok := h.rooms[key]
	if !ok {
		return
	}
	if _, member := entry.clients[client]; !member {
		return
	}
	h.detach(key, entry, client, evicted)

	if len(entry.clients) == 0 {
		delete(h.rooms, key)
		entry.room.stop()
		h.logger.Info("Room deleted", "room", key)
	}
}

func (h *Hub) detach(key string, entry *roomEntry, client *Client, evicted bool) {
	delete(entry.clients, client)
	delete(h.joined[client], key)
	room := entry.room
	room.enqueue(func() { room.leave(client, evicted) })
}

func (h *Hub) openRoom(key string) *roomEntry {
	room := newRoom(key, h.opts)
	entry := &roomEntry{
		room:    room,
		clients: make(map[*Client]protocol.Participant),
		created: time.Now(),
	}
	h.rooms[key] = entry

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		room.run()
	}()

	h.logger.Info("Room created", "room", key)
	return entry
}

// resolveRoom returns the room a message targets. An empty key resolves to
// the sender's only room.
func (h *Hub) resolveRoom(client *Client, key string) (string, bool) {
	rooms := h.joined[client]
	if key != "" {
		_, ok := rooms[key]
		return key, ok
	}
	if len(rooms) == 1 {
		for k := range rooms {
			return k, true
		}
	}
	return "", false
}

func (h *Hub) stats() []RoomStats {
	out := make([]RoomStats, 0, len(h.rooms))
	for key, entry := range h.rooms {
		s := RoomStats{Key: key, Members: len(entry.clients), CreatedAt: entry.created}
		for _, p := range entry.clients {
			if p.IsInstructor {
				s.Instructors++
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Stats returns per-room counters, sorted by room key.
func (h *Hub) Stats(ctx context.Context) ([]RoomStats, error) {
	reply := make(chan []RoomStats, 1)
	select {
	case h.statsReq <- reply:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Room looks up a live room by key.
func (h *Hub) Room(ctx context.Context, key string) (*Room, error) {
	reply := make(chan *Room, 1)
	select {
	case h.roomReq <- roomRequest{key: key, reply: reply}:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case room := <-reply:
		if room == nil {
			return nil, ErrRoomNotFound
		}
		return room, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Attach registers a new client. It reports false once the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}
