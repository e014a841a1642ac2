package rendezvous

import (
	"sort"
	"time"

	"github.com/AgentIsComing/live-screen-share-releases/internal/clock"
)

// hostState is the broadcaster slot of a room. Exactly one of hostEmpty,
// *hostLive or *hostGrace is stored, so a grace timer can never coexist
// with a bound broadcaster.
type hostState interface {
	name() string
}

type hostEmpty struct{}

func (hostEmpty) name() string { return "empty" }

type hostLive struct {
	client *Client
}

func (*hostLive) name() string { return "hosted" }

type hostGrace struct {
	deadline time.Time
	timer    *clock.Timer
}

func (*hostGrace) name() string { return "grace" }

// Room is a named rendezvous scope. Only the hub goroutine touches it.
type Room struct {
	ID      string
	host    hostState
	hostID  string
	viewers map[string]*Client
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		host:    hostEmpty{},
		viewers: make(map[string]*Client),
	}
}

// broadcaster returns the live broadcaster connection, if any.
func (r *Room) broadcaster() *Client {
	if live, ok := r.host.(*hostLive); ok {
		return live.client
	}
	return nil
}

// idle reports whether the room can be garbage-collected.
func (r *Room) idle() bool {
	_, empty := r.host.(hostEmpty)
	return empty && len(r.viewers) == 0
}

// RoomSnapshot is a read-only view of a room for stats and tests.
type RoomSnapshot struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	HostID        string    `json:"hostId,omitempty"`
	Viewers       []string  `json:"viewers"`
	GraceDeadline time.Time `json:"graceDeadline,omitzero"`
}

func (r *Room) snapshot() RoomSnapshot {
	snap := RoomSnapshot{
		ID:      r.ID,
		State:   r.host.name(),
		HostID:  r.hostID,
		Viewers: make([]string, 0, len(r.viewers)),
	}
	for id := range r.viewers {
		snap.Viewers = append(snap.Viewers, id)
	}
	sort.Strings(snap.Viewers)
	if g, ok := r.host.(*hostGrace); ok {
		snap.GraceDeadline = g.deadline
	}
	return snap
}
