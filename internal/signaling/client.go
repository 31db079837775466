package signaling

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/liveclass/classroom/internal/admission"
	"github.com/liveclass/classroom/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP and whiteboard deltas

	// Outbound queue length. A client that falls this far behind is dropped.
	sendBuffer = 256

	// Upper bound for an admission check on join-room.
	admissionTimeout = 5 * time.Second
)

// Client is a wrapper for a single websocket connection.
type Client struct {
	// ID is the server-assigned connection id, shared with peers as socketId.
	ID string

	// Hub is a pointer to the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection. It is nil for loopback clients.
	Conn *websocket.Conn

	// send is a buffered channel for all outbound messages.
	// Rooms write to it through Deliver, and WritePump drains it.
	send chan *protocol.Message

	// frameType is the websocket frame type of the last inbound message.
	// Replies use the same codec.
	frameType atomic.Int32

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client for conn with a fresh connection id.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		Hub:  hub,
		Conn: conn,
		send: make(chan *protocol.Message, sendBuffer),
	}
	c.frameType.Store(websocket.TextMessage)
	return c
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	// When this function exits (e.g., connection closes), unregister the client
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		frameType, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Websocket read failed", "conn", c.ID, "error", err)
			}
			break
		}

		codec := protocol.CodecFor(frameType)
		if codec == nil {
			continue
		}
		var msg protocol.Message
		if err := codec.Unmarshal(data, &msg); err != nil {
			c.Hub.logger.Debug("Dropping malformed frame", "conn", c.ID, "codec", codec.Name(), "error", err)
			continue
		}
		c.frameType.Store(int32(frameType))

		c.Submit(&msg)
	}
}

// WritePump pumps messages from the rooms to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			codec := protocol.CodecFor(int(c.frameType.Load()))
			data, err := codec.Marshal(message)
			if err != nil {
				c.Hub.logger.Error("Failed to encode message", "conn", c.ID, "type", message.Type, "error", err)
				continue
			}
			if err := c.Conn.WriteMessage(codec.FrameType(), data); err != nil {
				c.Hub.logger.Debug("Websocket write failed", "conn", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Submit hands a decoded message to the hub. The sender id is always
// overwritten with the connection id. join-room requests pass the admission
// check here, on the client's own goroutine, so a slow check never stalls
// the hub.
func (c *Client) Submit(msg *protocol.Message) {
	msg.From = c.ID
	if msg.Type == protocol.TypeJoinRoom && !c.admit(msg) {
		return
	}
	select {
	case c.Hub.Inbound <- &Inbound{Client: c, Message: msg}:
	case <-c.Hub.done:
	}
}

func (c *Client) admit(msg *protocol.Message) bool {
	var req protocol.JoinRoom
	if err := msg.Decode(&req); err != nil {
		c.sendError("invalid join-room payload")
		return false
	}
	if req.RoomID == "" {
		req.RoomID = msg.RoomID
	}

	ctx, cancel := context.WithTimeout(context.Background(), admissionTimeout)
	defer cancel()
	err := c.Hub.opts.Admission.Admit(ctx, admission.Request{
		RoomID:     req.RoomID,
		UserID:     req.UserID,
		Instructor: req.IsInstructor,
	})
	if err != nil {
		c.Hub.logger.Info("Join rejected", "conn", c.ID, "room", req.RoomID, "user", req.UserID, "error", err)
		c.sendError(err.Error())
		return false
	}

	msg.RoomID = req.RoomID
	return true
}

// Deliver queues msg for the write pump without blocking. A full queue marks
// the client as too slow and closes it.
func (c *Client) Deliver(msg *protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.Hub.logger.Warn("Send queue full, dropping client", "conn", c.ID)
		c.closed = true
		close(c.send)
		return false
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendError(text string) {
	msg, err := protocol.NewMessage(protocol.TypeError, protocol.ErrorPayload{Message: text})
	if err != nil {
		return
	}
	c.Deliver(msg)
}
