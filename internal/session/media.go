package session

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
	"github.com/AgentIsComing/live-screen-share-releases/internal/quality"
)

// MediaSession is one peer connection as the coordinator drives it. Calls
// on a single session are always made from one goroutine at a time.
// Callbacks may fire on any goroutine.
type MediaSession interface {
	// PrepareReceiveOnly adds receive-only video and audio transceivers.
	PrepareReceiveOnly() error
	AddTrack(track webrtc.TrackLocal) error
	// ReplaceTrack swaps the sender of the same kind without renegotiating.
	ReplaceTrack(track webrtc.TrackLocal) error
	ApplyQuality(q quality.Quality) error

	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnTrack(fn func(*webrtc.TrackRemote))

	Close() error
}

// MediaFactory creates a fresh MediaSession per peer.
type MediaFactory interface {
	NewSession() (MediaSession, error)
}

// Source produces the broadcaster's local tracks. Start must not block.
type Source interface {
	Tracks() []webrtc.TrackLocal
	Start(ctx context.Context) error
	Close() error
}

// Constrainer is implemented by sources that can honor quality limits.
type Constrainer interface {
	Constrain(q quality.Quality)
}

// Signaler sends messages to the rendezvous server.
type Signaler interface {
	Send(msg *protocol.Message) error
}
