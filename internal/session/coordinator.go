// Package session coordinates WebRTC negotiation for one broadcaster or one
// viewer. A Coordinator owns every peer session of its process, buffers
// signaling that arrives out of order and applies quality and track changes
// to live sessions.
//
// All state is owned by the goroutine running Run. MediaSession calls run on
// a per-session worker so slow negotiation never stalls signaling; when a
// worker finishes, its result is posted back to the loop, which drops it if
// the session has since been replaced or torn down.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
	"github.com/AgentIsComing/live-screen-share-releases/internal/quality"
)

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("coordinator stopped")

// hostPeer keys a viewer's single session to the broadcaster.
const hostPeer = "host"

// Config wires a Coordinator to its collaborators.
type Config struct {
	// Role is protocol.RoleHost or protocol.RoleViewer.
	Role   string
	RoomID string

	// ClientID is sent with every join. Defaults to "<role>-<8 hex>".
	ClientID string

	Media    MediaFactory
	Signaler Signaler
	Quality  quality.Quality

	// OnStatus and OnTrack run on the coordinator goroutine and must not
	// call back into the Coordinator.
	OnStatus func(Status)
	OnTrack  func(peerID string, track *webrtc.TrackRemote)

	Logger *slog.Logger
}

// Coordinator is the per-role negotiation state machine.
type Coordinator struct {
	role     string
	roomID   string
	clientID string
	media    MediaFactory
	signaler Signaler
	onStatus func(Status)
	onTrack  func(string, *webrtc.TrackRemote)
	logger   *slog.Logger

	events chan func()
	done   chan struct{}

	// Owned by the loop.
	ctx           context.Context
	sessions      map[string]*peerSession
	pending       map[string]*candidateQueue
	pendingSeq    uint64
	quality       quality.Quality
	signalingUp   bool
	joined        bool
	hostAvailable bool
	wantConnect   bool
	source        Source
	stopSource    context.CancelFunc
}

// peerSession is the loop's view of one remote peer.
type peerSession struct {
	id       string
	remoteID string
	media    MediaSession
	worker   *worker
	state    webrtc.PeerConnectionState

	hasRemoteDescription bool
	awaitingAnswer       bool
}

// New validates cfg and returns a Coordinator. Call Run to start it.
func New(cfg Config) (*Coordinator, error) {
	role, ok := protocol.ParseRole(cfg.Role)
	if !ok {
		return nil, fmt.Errorf("invalid role %q", cfg.Role)
	}
	if cfg.RoomID == "" {
		return nil, errors.New("room ID is required")
	}
	if cfg.Media == nil || cfg.Signaler == nil {
		return nil, errors.New("media factory and signaler are required")
	}

	c := &Coordinator{
		role:     role,
		roomID:   cfg.RoomID,
		clientID: cfg.ClientID,
		media:    cfg.Media,
		signaler: cfg.Signaler,
		onStatus: cfg.OnStatus,
		onTrack:  cfg.OnTrack,
		logger:   cfg.Logger,
		events:   make(chan func()),
		done:     make(chan struct{}),
		sessions: make(map[string]*peerSession),
		pending:  make(map[string]*candidateQueue),
		quality:  cfg.Quality,
	}
	if c.clientID == "" {
		c.clientID = NewClientID(role)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.quality.Profile.Name == "" {
		c.quality = quality.Default()
	}
	c.logger = c.logger.With("role", role, "room", c.roomID, "client", c.clientID)
	return c, nil
}

// NewClientID returns a fresh identifier of the form "<role>-<8 hex>".
func NewClientID(role string) string {
	return role + "-" + uuid.NewString()[:8]
}

// ClientID is the identifier sent with every join.
func (c *Coordinator) ClientID() string { return c.clientID }

// Role is the canonical wire role.
func (c *Coordinator) Role() string { return c.role }

// Run processes events until ctx is done, then tears down every session and
// stops the capture source.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx = ctx
	defer func() {
		for _, ps := range c.sessions {
			c.removeSession(ps)
		}
		c.closeSource()
		close(c.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-c.events:
			fn()
		}
	}
}

// post hands fn to the loop. It reports false once Run has returned.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the loop and waits for its result.
func (c *Coordinator) call(fn func() error) error {
	result := make(chan error, 1)
	if !c.post(func() { result <- fn() }) {
		return ErrStopped
	}
	return <-result
}

func (c *Coordinator) status(kind Kind, peerID, message string, err error) {
	switch kind {
	case Error:
		c.logger.Error(message, "peer", peerID, "error", err)
	case Warning:
		c.logger.Warn(message, "peer", peerID, "error", err)
	default:
		c.logger.Info(message, "peer", peerID)
	}
	if c.onStatus != nil {
		c.onStatus(Status{Kind: kind, Message: message, PeerID: peerID, Err: err})
	}
}

// Peers lists the current sessions sorted by peer ID.
func (c *Coordinator) Peers() []PeerInfo {
	var peers []PeerInfo
	c.call(func() error {
		for _, ps := range c.sessions {
			id := ps.id
			if ps.remoteID != "" {
				id = ps.remoteID
			}
			peers = append(peers, PeerInfo{ID: id, State: ps.state.String()})
		}
		return nil
	})
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

// Quality returns the quality currently applied.
func (c *Coordinator) Quality() quality.Quality {
	var q quality.Quality
	c.call(func() error {
		q = c.quality
		return nil
	})
	return q
}

// SetQuality reapplies quality to the source and every live session.
func (c *Coordinator) SetQuality(profile string, bitrate int) (quality.Quality, error) {
	q := quality.New(profile, bitrate)
	err := c.call(func() error {
		c.quality = q
		if cs, ok := c.source.(Constrainer); ok {
			cs.Constrain(q)
		}
		for _, ps := range c.sessions {
			ps.worker.enqueue(func() {
				if err := ps.media.ApplyQuality(q); err != nil {
					c.logger.Warn("apply quality failed", "peer", ps.id, "error", err)
				}
			})
		}
		c.status(Info, "", fmt.Sprintf("Quality set to %s at %d kbps", q.Profile.Name, q.EffectiveBitrate()/1000), nil)
		return nil
	})
	return q, err
}

// SignalingConnected is called whenever the signaling socket (re)connects.
// It (re)joins the room with the same client ID.
func (c *Coordinator) SignalingConnected() {
	c.post(func() {
		c.signalingUp = true
		c.joined = false
		if err := c.signaler.Send(protocol.NewJoin(c.role, c.roomID, c.clientID)); err != nil {
			c.status(Warning, "", "Could not join room", err)
			return
		}
		c.status(Info, "", "Connected to signaling server", nil)
	})
}

// SignalingLost is called when the signaling socket drops. Peer sessions
// are kept; media keeps flowing peer to peer.
func (c *Coordinator) SignalingLost(err error) {
	c.post(func() {
		c.signalingUp = false
		c.joined = false
		c.status(Warning, "", "Signaling connection lost, reconnecting", err)
	})
}

// HandleJoined implements signaling.Dispatcher.
func (c *Coordinator) HandleJoined(role, roomID string, hostAvailable bool) {
	c.post(func() {
		c.joined = true
		c.status(Info, "", fmt.Sprintf("Joined room %s as %s", roomID, role), nil)
		if c.role == protocol.RoleViewer {
			c.hostAvailable = hostAvailable
			c.maybeConnect()
		}
	})
}

// HandleHostAvailable implements signaling.Dispatcher.
func (c *Coordinator) HandleHostAvailable() {
	c.post(func() {
		if c.role != protocol.RoleViewer {
			return
		}
		c.hostAvailable = true
		c.status(Info, "", "Host is available", nil)
		c.maybeConnect()
	})
}

// HandleViewerJoined implements signaling.Dispatcher.
func (c *Coordinator) HandleViewerJoined() {
	c.post(func() {
		c.status(Info, "", "A viewer joined the room", nil)
	})
}

// HandleBroadcastEnded implements signaling.Dispatcher.
func (c *Coordinator) HandleBroadcastEnded() {
	c.post(func() {
		if c.role != protocol.RoleViewer {
			return
		}
		c.hostAvailable = false
		if ps := c.sessions[hostPeer]; ps != nil {
			c.removeSession(ps)
		}
		delete(c.pending, hostPeer)
		c.status(Warning, "", "Broadcast ended", nil)
	})
}

// HandleServerError implements signaling.Dispatcher.
func (c *Coordinator) HandleServerError(message string) {
	c.post(func() {
		c.status(Error, "", message, nil)
	})
}

// HandleSignal implements signaling.Dispatcher.
func (c *Coordinator) HandleSignal(data *protocol.SignalData) {
	c.post(func() {
		if data.To != "" && data.To != c.clientID {
			c.logger.Debug("ignoring signal for another client", "to", data.To)
			return
		}
		if c.role == protocol.RoleHost {
			c.hostSignal(data)
		} else {
			c.viewerSignal(data)
		}
	})
}

// newSession creates a session for peer and hooks its callbacks back into
// the loop.
func (c *Coordinator) newSession(peer string) (*peerSession, error) {
	media, err := c.media.NewSession()
	if err != nil {
		return nil, protocol.NewOpError("create peer connection", fmt.Errorf("%w: %v", protocol.ErrTransport, err))
	}
	ps := &peerSession{
		id:     peer,
		media:  media,
		worker: newWorker(),
		state:  webrtc.PeerConnectionStateNew,
	}

	media.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		c.post(func() { c.localCandidate(ps, cand) })
	})
	media.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.post(func() { c.connectionState(ps, state) })
	})
	media.OnTrack(func(track *webrtc.TrackRemote) {
		c.post(func() {
			if c.current(ps) && c.onTrack != nil {
				c.onTrack(ps.peerID(), track)
			}
		})
	})

	c.sessions[peer] = ps
	return ps, nil
}

func (ps *peerSession) peerID() string {
	if ps.remoteID != "" {
		return ps.remoteID
	}
	return ps.id
}

func (c *Coordinator) current(ps *peerSession) bool {
	return c.sessions[ps.id] == ps
}

// removeSession drops ps from the registry and closes its media on the
// session's worker, after any call already in progress.
func (c *Coordinator) removeSession(ps *peerSession) {
	if c.current(ps) {
		delete(c.sessions, ps.id)
	}
	media := ps.media
	ps.worker.stop(func() {
		if err := media.Close(); err != nil {
			c.logger.Debug("close peer connection", "peer", ps.id, "error", err)
		}
	})
}

// failSession tears ps down after a negotiation or transport failure.
func (c *Coordinator) failSession(ps *peerSession, op string, err error) {
	if !c.current(ps) {
		return
	}
	c.removeSession(ps)
	delete(c.pending, ps.id)
	if c.role == protocol.RoleViewer {
		c.wantConnect = false
	}
	c.status(Error, ps.peerID(), op+" failed", protocol.NewOpError(op, fmt.Errorf("%w: %v", protocol.ErrTransport, err)))
}

// queueCandidate buffers or applies a remote candidate for peer.
func (c *Coordinator) queueCandidate(peer string, cand webrtc.ICECandidateInit) {
	if ps := c.sessions[peer]; ps != nil && ps.hasRemoteDescription {
		c.applyCandidate(ps, cand)
		return
	}
	q := c.pending[peer]
	if q == nil {
		if len(c.pending) >= maxPendingPeers {
			c.evictPending()
		}
		c.pendingSeq++
		q = &candidateQueue{seq: c.pendingSeq}
		c.pending[peer] = q
	}
	if q.push(cand) {
		c.logger.Warn("pending candidate queue full, dropped oldest", "peer", peer)
	}
}

// evictPending drops the oldest queue, preferring peers that never got a
// session.
func (c *Coordinator) evictPending() {
	var victim string
	var oldest *candidateQueue
	for peer, q := range c.pending {
		orphan := c.sessions[peer] == nil
		if oldest != nil {
			oldestOrphan := c.sessions[victim] == nil
			if oldestOrphan && !orphan {
				continue
			}
			if oldestOrphan == orphan && q.seq > oldest.seq {
				continue
			}
		}
		victim, oldest = peer, q
	}
	if oldest == nil {
		return
	}
	delete(c.pending, victim)
	c.logger.Debug("evicted pending candidates", "peer", victim, "count", len(oldest.items))
}

func (c *Coordinator) applyCandidate(ps *peerSession, cand webrtc.ICECandidateInit) {
	ps.worker.enqueue(func() {
		if err := ps.media.AddICECandidate(cand); err != nil {
			c.logger.Warn("add ICE candidate failed", "peer", ps.id, "error", err)
		}
	})
}

// remoteApplied runs once SetRemoteDescription has returned. Buffered
// candidates are handed to the worker in arrival order.
func (c *Coordinator) remoteApplied(ps *peerSession, err error) {
	if !c.current(ps) {
		return
	}
	if err != nil {
		c.failSession(ps, "set remote description", err)
		return
	}
	ps.hasRemoteDescription = true
	if q := c.pending[ps.id]; q != nil {
		if q.dropped > 0 {
			c.logger.Warn("candidates lost before remote description", "peer", ps.id, "dropped", q.dropped)
		}
		for _, cand := range q.drain() {
			c.applyCandidate(ps, cand)
		}
		delete(c.pending, ps.id)
	}
	if c.role == protocol.RoleHost {
		c.createAnswer(ps)
	}
}

func (c *Coordinator) localCandidate(ps *peerSession, cand webrtc.ICECandidateInit) {
	if !c.current(ps) {
		return
	}
	data := protocol.SignalData{From: c.clientID, Candidate: protocol.CandidateFromPion(cand)}
	if c.role == protocol.RoleHost {
		data.To = ps.id
	}
	if err := c.sendSignal(data); err != nil {
		c.logger.Debug("dropping local candidate", "peer", ps.id, "error", err)
	}
}

func (c *Coordinator) connectionState(ps *peerSession, state webrtc.PeerConnectionState) {
	if !c.current(ps) {
		return
	}
	ps.state = state

	switch state {
	case webrtc.PeerConnectionStateConnected:
		c.status(PeerConnected, ps.peerID(), "Peer connected", nil)
	case webrtc.PeerConnectionStateDisconnected:
		c.status(Warning, ps.peerID(), "Peer connection interrupted", nil)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		c.removeSession(ps)
		delete(c.pending, ps.id)
		if c.role == protocol.RoleViewer {
			c.wantConnect = false
		}
		c.status(PeerDisconnected, ps.peerID(), "Peer connection "+state.String(),
			protocol.NewOpError("peer connection", protocol.ErrTransport))
	}
}

func (c *Coordinator) sendSignal(data protocol.SignalData) error {
	msg, err := protocol.NewSignal(data)
	if err != nil {
		return err
	}
	return c.signaler.Send(msg)
}
