package rendezvous

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AgentIsComing/live-screen-share-releases/internal/clock"
	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
)

// GracePeriod is how long a room waits for a disconnected broadcaster to
// come back before its viewers are told the broadcast ended.
const GracePeriod = 10 * time.Second

type inboundFrame struct {
	client *Client
	raw    []byte
}

type graceExpiry struct {
	roomID string
	grace  *hostGrace
}

// Hub is the room registry. All room state is owned by the goroutine
// running Run; connections and timers talk to it over channels.
type Hub struct {
	rooms   map[string]*Room
	clients map[*Client]struct{}

	registerCh   chan *Client
	unregisterCh chan *Client
	inboundCh    chan inboundFrame
	expiredCh    chan graceExpiry
	queryCh      chan func()
	done         chan struct{}

	clock  clock.Clock
	logger *slog.Logger
}

type Option func(*Hub)

func WithClock(c clock.Clock) Option {
	return func(h *Hub) { h.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a Hub. Nothing is processed until Run is called.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		rooms:        make(map[string]*Room),
		clients:      make(map[*Client]struct{}),
		registerCh:   make(chan *Client),
		unregisterCh: make(chan *Client),
		inboundCh:    make(chan inboundFrame),
		expiredCh:    make(chan graceExpiry),
		queryCh:      make(chan func()),
		done:         make(chan struct{}),
		clock:        clock.Real(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run is the hub's event loop. It returns when ctx is done, after closing
// every connection's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.closeClient(c)
		}
		for _, room := range h.rooms {
			if g, ok := room.host.(*hostGrace); ok {
				g.timer.Stop()
			}
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.registerCh:
			h.clients[c] = struct{}{}
			h.logger.Debug("client registered", "remote", c.remote)

		case c := <-h.unregisterCh:
			h.handleClose(c)

		case frame := <-h.inboundCh:
			h.handleFrame(frame.client, frame.raw)

		case ev := <-h.expiredCh:
			h.handleExpiry(ev)

		case fn := <-h.queryCh:
			fn()
		}
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.registerCh <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.unregisterCh <- c:
	case <-h.done:
	}
}

func (h *Hub) inbound(c *Client, raw []byte) bool {
	select {
	case h.inboundCh <- inboundFrame{client: c, raw: raw}:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handleFrame(c *Client, raw []byte) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reject(c, protocol.ReasonInvalidJSON)
		return
	}

	switch msg.Type {
	case protocol.TypeJoin:
		h.join(c, &msg)
	case protocol.TypeSignal:
		h.relay(c, &msg)
	case protocol.TypeBroadcastEnd:
		h.broadcastEnd(c)
	default:
		h.logger.Debug("unknown message type", "type", msg.Type, "remote", c.remote)
		h.reject(c, protocol.ReasonUnknownType)
	}
}

func (h *Hub) join(c *Client, msg *protocol.Message) {
	role, ok := protocol.ParseRole(msg.Role)
	roomID := strings.TrimSpace(msg.RoomID)
	clientID := strings.TrimSpace(msg.ClientID)
	if !ok || roomID == "" || clientID == "" {
		h.reject(c, protocol.ReasonInvalidJoin)
		return
	}
	if c.bound() && (c.role != role || c.roomID != roomID || c.clientID != clientID) {
		h.reject(c, protocol.ReasonAlreadyJoined)
		return
	}

	room := h.rooms[roomID]
	if role == protocol.RoleHost && room != nil {
		if live := room.broadcaster(); live != nil && live != c {
			h.logger.Info("host join rejected", "room", roomID, "client", clientID, "current", room.hostID)
			h.reject(c, protocol.ReasonHostConflict)
			return
		}
	}
	if room == nil {
		room = newRoom(roomID)
		h.rooms[roomID] = room
		h.logger.Info("room created", "room", roomID)
	}

	c.role, c.roomID, c.clientID = role, roomID, clientID

	if role == protocol.RoleHost {
		if g, ok := room.host.(*hostGrace); ok {
			g.timer.Stop()
			h.logger.Info("host returned within grace period", "room", roomID, "client", clientID)
		}
		room.host = &hostLive{client: c}
		room.hostID = clientID
		h.send(c, protocol.NewJoined(protocol.RoleHost, roomID, nil))
		h.fanOut(room, &protocol.Message{Type: protocol.TypeHostAvailable})
		h.logger.Info("host joined", c.logAttrs()...)
		return
	}

	room.viewers[clientID] = c
	host := room.broadcaster()
	h.send(c, protocol.NewJoined(protocol.RoleViewer, roomID, protocol.Bool(host != nil)))
	if host != nil {
		h.send(host, &protocol.Message{Type: protocol.TypeViewerJoined})
	}
	h.logger.Info("viewer joined", c.logAttrs()...)
}

func (h *Hub) relay(c *Client, msg *protocol.Message) {
	if !c.bound() {
		h.reject(c, protocol.ReasonJoinFirst)
		return
	}
	room := h.rooms[c.roomID]
	if room == nil {
		h.reject(c, protocol.ReasonRoomNotFound)
		return
	}

	var addr struct {
		To string `json:"to"`
	}
	if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &addr) != nil || string(msg.Data) == "null" {
		h.reject(c, protocol.ReasonInvalidSignal)
		return
	}
	out := &protocol.Message{Type: protocol.TypeSignal, Data: msg.Data}

	if c.role == protocol.RoleHost {
		if room.broadcaster() != c {
			return
		}
		if addr.To == "" {
			h.logger.Debug("dropping host signal without destination", "room", room.ID)
			return
		}
		if viewer := room.viewers[addr.To]; viewer != nil {
			h.send(viewer, out)
		} else {
			h.logger.Debug("signal target not in room", "room", room.ID, "to", addr.To)
		}
		return
	}

	// A connection replaced by a rejoin under the same id no longer speaks
	// for that viewer.
	if room.viewers[c.clientID] != c {
		h.logger.Debug("dropping signal from replaced viewer connection", c.logAttrs()...)
		return
	}
	if host := room.broadcaster(); host != nil {
		h.send(host, out)
	}
}

func (h *Hub) broadcastEnd(c *Client) {
	if !c.bound() {
		h.reject(c, protocol.ReasonJoinFirst)
		return
	}
	room := h.rooms[c.roomID]
	if room == nil || c.role != protocol.RoleHost || room.broadcaster() != c {
		return
	}
	h.fanOut(room, &protocol.Message{Type: protocol.TypeBroadcastEnded})
	h.logger.Info("broadcast ended by host", c.logAttrs()...)
}

func (h *Hub) handleClose(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.closeClient(c)

	if !c.bound() {
		return
	}
	room := h.rooms[c.roomID]
	if room == nil {
		return
	}

	switch c.role {
	case protocol.RoleHost:
		if room.broadcaster() == c {
			h.startGrace(room)
		}
	case protocol.RoleViewer:
		if room.viewers[c.clientID] == c {
			delete(room.viewers, c.clientID)
			h.logger.Info("viewer left", c.logAttrs()...)
		}
	}
	h.collect(room)
}

func (h *Hub) startGrace(room *Room) {
	g := &hostGrace{deadline: h.clock.Now().Add(GracePeriod)}
	roomID := room.ID
	g.timer = h.clock.AfterFunc(GracePeriod, func() {
		select {
		case h.expiredCh <- graceExpiry{roomID: roomID, grace: g}:
		case <-h.done:
		}
	})
	room.host = g
	h.logger.Info("host disconnected, waiting for rejoin", "room", roomID, "client", room.hostID, "deadline", g.deadline)
}

// handleExpiry acts on a grace timer only if it is still the room's
// current one; a rejoin or a newer disconnect makes it stale.
func (h *Hub) handleExpiry(ev graceExpiry) {
	room := h.rooms[ev.roomID]
	if room == nil {
		return
	}
	if g, ok := room.host.(*hostGrace); !ok || g != ev.grace {
		return
	}

	room.host = hostEmpty{}
	room.hostID = ""
	h.fanOut(room, &protocol.Message{Type: protocol.TypeBroadcastEnded})
	h.logger.Info("grace period expired", "room", room.ID, "viewers", len(room.viewers))
	h.collect(room)
}

func (h *Hub) collect(room *Room) {
	if room.idle() {
		delete(h.rooms, room.ID)
		h.logger.Info("room deleted", "room", room.ID)
	}
}

func (h *Hub) fanOut(room *Room, msg *protocol.Message) {
	for _, viewer := range room.viewers {
		h.send(viewer, msg)
	}
}

func (h *Hub) reject(c *Client, reason string) {
	h.send(c, protocol.NewError(reason))
}

// send never blocks the hub. A connection that cannot keep up is dropped
// and will be unregistered by its read pump.
func (h *Hub) send(c *Client, msg *protocol.Message) {
	if c.closed {
		return
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Error("encode message", "type", msg.Type, "error", err)
		return
	}
	select {
	case c.send <- frame:
	default:
		h.logger.Warn("dropping slow connection", c.logAttrs()...)
		c.drop()
	}
}

func (h *Hub) closeClient(c *Client) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Stats summarizes the registry.
type Stats struct {
	Rooms   int            `json:"rooms"`
	Clients int            `json:"clients"`
	Detail  []RoomSnapshot `json:"detail,omitempty"`
}

// Stats asks the hub goroutine for a snapshot. Because every hub channel is
// unbuffered, the snapshot reflects all events handed to the hub before the
// call.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	result := make(chan Stats, 1)
	query := func() {
		s := Stats{Rooms: len(h.rooms), Clients: len(h.clients)}
		for _, room := range h.rooms {
			s.Detail = append(s.Detail, room.snapshot())
		}
		sort.Slice(s.Detail, func(i, j int) bool { return s.Detail[i].ID < s.Detail[j].ID })
		result <- s
	}
	select {
	case h.queryCh <- query:
	case <-h.done:
		return Stats{}, context.Canceled
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	return <-result, nil
}

// Room returns a snapshot of one room, or false if it is not registered.
func (h *Hub) Room(ctx context.Context, id string) (RoomSnapshot, bool, error) {
	type answer struct {
		snap RoomSnapshot
		ok   bool
	}
	result := make(chan answer, 1)
	query := func() {
		room, ok := h.rooms[id]
		if !ok {
			result <- answer{}
			return
		}
		result <- answer{snap: room.snapshot(), ok: true}
	}
	select {
	case h.queryCh <- query:
	case <-h.done:
		return RoomSnapshot{}, false, context.Canceled
	case <-ctx.Done():
		return RoomSnapshot{}, false, ctx.Err()
	}
	a := <-result
	return a.snap, a.ok, nil
}
