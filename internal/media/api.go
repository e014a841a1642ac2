// Package media is the pion/webrtc implementation of the coordinator's
// MediaSession, plus file-backed capture sources and track recorders.
package media

import (
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/config"
)

// DefaultPLIInterval is how often a receiver asks for a keyframe, so a
// viewer that joins mid-stream gets a picture quickly.
const DefaultPLIInterval = 3 * time.Second

// candidatePoolSize pre-gathers candidates before the first offer.
const candidatePoolSize = 10

// NewAPI builds a pion API with the default codecs and interceptors plus a
// periodic keyframe request on received video.
func NewAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, wrap("register codecs", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, wrap("register interceptors", err)
	}

	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(DefaultPLIInterval))
	if err != nil {
		return nil, wrap("create PLI interceptor", err)
	}
	registry.Add(pli)

	return webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(registry)), nil
}

// PeerConfiguration maps client config onto a pion configuration. Relay-only
// transport is used when forced, or when the network looks like a VPN or
// CGNAT and a TURN server is available.
func PeerConfiguration(cfg *config.Config) webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		server := webrtc.ICEServer{URLs: []string(s.URLs), Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}

	policy := webrtc.ICETransportPolicyAll
	if cfg.HasTURN() && (cfg.ForceRelay || RestrictedNetwork()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:           servers,
		ICETransportPolicy:   policy,
		BundlePolicy:         webrtc.BundlePolicyMaxBundle,
		ICECandidatePoolSize: candidatePoolSize,
	}
}
