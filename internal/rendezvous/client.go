package rendezvous

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with many candidates fits.
	maxMessageSize = 64 * 1024

	// Outbound frames buffered per connection before it is dropped as a
	// slow consumer.
	sendBuffer = 256
)

// Client is one signaling connection. The binding fields are written once
// by the hub goroutine on a successful join and never change afterwards.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan []byte

	role     string
	roomID   string
	clientID string

	// closed is set by the hub once send has been closed.
	closed bool
	kill   sync.Once
}

// NewClient wraps an upgraded connection. Call Serve to start it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if conn != nil {
		c.remote = conn.RemoteAddr().String()
	}
	return c
}

func (c *Client) bound() bool {
	return c.roomID != ""
}

// Serve registers the client with the hub and runs its pumps. It returns
// false if the hub has already stopped.
func (c *Client) Serve() bool {
	if !c.hub.register(c) {
		c.conn.Close()
		return false
	}
	go c.writePump()
	go c.readPump()
	return true
}

// drop closes the underlying connection, which ends readPump and
// unregisters the client.
func (c *Client) drop() {
	c.kill.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump forwards every inbound frame to the hub. It is the only reader
// of the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.drop()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("connection read failed", "remote", c.remote, "error", err)
			}
			return
		}
		if !c.hub.inbound(c, raw) {
			return
		}
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings. It is the only writer of the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.drop()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.logger.Debug("connection write failed", "remote", c.remote, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) logAttrs() []any {
	return []any{
		slog.String("remote", c.remote),
		slog.String("room", c.roomID),
		slog.String("role", c.role),
		slog.String("client", c.clientID),
	}
}
