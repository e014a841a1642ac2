package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AgentIsComing/live-screen-share-releases/internal/clock"
	"github.com/AgentIsComing/live-screen-share-releases/internal/dns"
	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64

	// ReconnectInterval is the fixed delay between connection attempts.
	ReconnectInterval = 2 * time.Second
)

// Client keeps a WebSocket connection to the signaling server open,
// reconnecting forever until its context is cancelled.
type Client struct {
	serverURL string
	dialer    *websocket.Dialer
	clock     clock.Clock
	logger    *slog.Logger

	onConnect    func()
	onDisconnect func(error)

	incoming chan *protocol.Message

	mu      sync.Mutex
	current *connection
}

// connection is one dialed socket. send is only written under Client.mu.
type connection struct {
	ws   *websocket.Conn
	send chan []byte
	quit chan struct{}
}

type Option func(*Client)

func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithDialer replaces the default dialer, which resolves hosts through the
// dns package.
func WithDialer(d *websocket.Dialer) Option {
	return func(cl *Client) { cl.dialer = d }
}

// OnConnect is called from the client's goroutine after every successful
// dial, before any message is read.
func OnConnect(fn func()) Option {
	return func(cl *Client) { cl.onConnect = fn }
}

// OnDisconnect is called when an established connection drops.
func OnDisconnect(fn func(error)) Option {
	return func(cl *Client) { cl.onDisconnect = fn }
}

// NewClient creates a signaling client. Nothing is dialed until Run.
func NewClient(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: serverURL,
		dialer:    resolvingDialer(),
		clock:     clock.Real(),
		logger:    slog.Default(),
		incoming:  make(chan *protocol.Message, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resolvingDialer dials through dns.Lookup so a broken system resolver does
// not keep the client offline.
func resolvingDialer() *websocket.Dialer {
	d := *websocket.DefaultDialer
	d.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ip, err := dns.Lookup(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		var nd net.Dialer
		return nd.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}
	return &d
}

// Incoming delivers decoded server messages. It is closed when Run returns.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Send queues msg on the current connection. It never blocks; without a
// connection, or when the queue is full, it fails with ErrTransport.
func (c *Client) Send(msg *protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return protocol.NewOpError("encode message", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return protocol.WrapError("send "+msg.Type, protocol.ErrTransport, "not connected")
	}
	select {
	case c.current.send <- frame:
		return nil
	default:
		return protocol.WrapError("send "+msg.Type, protocol.ErrTransport, "send queue full")
	}
}

// Run dials, serves and redials every ReconnectInterval until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.incoming)

	if _, err := url.Parse(c.serverURL); err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	for {
		ws, _, err := c.dialer.DialContext(ctx, c.serverURL, nil)
		if err != nil {
			c.logger.Debug("signaling dial failed", "url", c.serverURL, "error", err)
		} else {
			c.logger.Info("signaling connected", "url", c.serverURL)
			err = c.serve(ctx, ws)
			if ctx.Err() == nil {
				c.logger.Info("signaling disconnected", "error", err)
				if c.onDisconnect != nil {
					c.onDisconnect(err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(ReconnectInterval):
		}
	}
}

func (c *Client) serve(ctx context.Context, ws *websocket.Conn) error {
	conn := &connection{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		quit: make(chan struct{}),
	}
	c.mu.Lock()
	c.current = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
		close(conn.quit)
		ws.Close()
	}()

	go c.writePump(ctx, conn)

	if c.onConnect != nil {
		c.onConnect()
	}
	return c.readPump(ctx, conn)
}

// readPump decodes frames until the socket fails.
func (c *Client) readPump(ctx context.Context, conn *connection) error {
	conn.ws.SetReadLimit(maxMessageSize)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			return protocol.NewOpError("read", fmt.Errorf("%w: %v", protocol.ErrTransport, err))
		}

		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("dropping malformed server message", "error", err)
			continue
		}

		select {
		case c.incoming <- &msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writePump is the only writer of the socket. It closes the socket when it
// exits, which also ends readPump.
func (c *Client) writePump(ctx context.Context, conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case frame := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("signaling write failed", "error", err)
				return
			}

		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			// Frames queued before shutdown, such as broadcast-end, still go out.
			for pending := true; pending; {
				select {
				case frame := <-conn.send:
					if conn.ws.WriteMessage(websocket.TextMessage, frame) != nil {
						return
					}
				default:
					pending = false
				}
			}
			conn.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-conn.quit:
			return
		}
	}
}
