package media

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/config"
	"github.com/AgentIsComing/live-screen-share-releases/internal/quality"
	"github.com/AgentIsComing/live-screen-share-releases/internal/session"
)

var errNoSender = errors.New("no sender for track kind")

// Factory creates peer connections that share one pion API and ICE setup.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *slog.Logger
}

// NewFactory builds the pion API and peer configuration for cfg.
func NewFactory(cfg *config.Config, logger *slog.Logger) (*Factory, error) {
	api, err := NewAPI()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	pcConfig := PeerConfiguration(cfg)
	if pcConfig.ICETransportPolicy == webrtc.ICETransportPolicyRelay {
		logger.Info("using relay-only ICE transport")
	}
	return &Factory{api: api, config: pcConfig, logger: logger}, nil
}

// NewSession opens a fresh peer connection.
func (f *Factory) NewSession() (session.MediaSession, error) {
	return f.NewPeerSession()
}

// NewPeerSession is NewSession with the concrete type.
func (f *Factory) NewPeerSession() (*PeerSession, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, wrap("create peer connection", err)
	}
	return &PeerSession{pc: pc, logger: f.logger}, nil
}

// PeerSession adapts a pion PeerConnection to session.MediaSession.
type PeerSession struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger
}

var _ session.MediaSession = (*PeerSession)(nil)

// PrepareReceiveOnly adds receive-only video and audio transceivers so an
// offer asks the host for both.
func (s *PeerSession) PrepareReceiveOnly() error {
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		_, err := s.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return wrap("add "+kind.String()+" transceiver", err)
		}
	}
	return nil
}

func (s *PeerSession) AddTrack(track webrtc.TrackLocal) error {
	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return wrap("add track", err)
	}

	// Interceptors only run while RTCP is read.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// ReplaceTrack swaps the outgoing track of the same kind without
// renegotiating.
func (s *PeerSession) ReplaceTrack(track webrtc.TrackLocal) error {
	for _, sender := range s.pc.GetSenders() {
		current := sender.Track()
		if current == nil || current.Kind() != track.Kind() {
			continue
		}
		if err := sender.ReplaceTrack(track); err != nil {
			return wrap("replace track", err)
		}
		return nil
	}
	return wrap("replace track", fmt.Errorf("%w: %s", errNoSender, track.Kind()))
}

// ApplyQuality logs the profile for this connection. Sources enforce the
// frame pacing; pion has no per-sender encoding parameters to set.
func (s *PeerSession) ApplyQuality(q quality.Quality) error {
	s.logger.Debug("quality applied",
		"profile", q.Profile.Name,
		"bitrate", q.EffectiveBitrate(),
		"playout_delay", q.Profile.PlayoutDelay)
	return nil
}

func (s *PeerSession) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, wrap("create offer", err)
	}
	return offer, nil
}

func (s *PeerSession) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, wrap("create answer", err)
	}
	return answer, nil
}

func (s *PeerSession) SetLocalDescription(desc webrtc.SessionDescription) error {
	if err := s.pc.SetLocalDescription(desc); err != nil {
		return wrap("set local description", err)
	}
	return nil
}

func (s *PeerSession) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return wrap("set remote description", err)
	}
	return nil
}

func (s *PeerSession) AddICECandidate(c webrtc.ICECandidateInit) error {
	if err := s.pc.AddICECandidate(c); err != nil {
		return wrap("add ICE candidate", err)
	}
	return nil
}

func (s *PeerSession) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (s *PeerSession) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	s.pc.OnConnectionStateChange(fn)
}

func (s *PeerSession) OnTrack(fn func(*webrtc.TrackRemote)) {
	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(track)
	})
}

func (s *PeerSession) Close() error {
	return s.pc.Close()
}
