package signaling

import "github.com/liveclass/classroom/internal/protocol"

// NewLoopbackClient registers a client that has no websocket behind it.
// Messages for it are read from Outbox and messages from it are passed to
// Submit. In-process harnesses and tests use it in place of a socket.
func NewLoopbackClient(hub *Hub) *Client {
	c := NewClient(hub, nil)
	hub.Attach(c)
	return c
}

// Outbox is closed when the hub drops the client.
func (c *Client) Outbox() <-chan *protocol.Message {
	return c.send
}

// Disconnect behaves like the socket closing.
func (c *Client) Disconnect() {
	c.Hub.unregister(c)
}
