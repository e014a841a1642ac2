package cmd

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/AgentIsComing/live-screen-share-releases/internal/config"
	"github.com/AgentIsComing/live-screen-share-releases/internal/media"
	"github.com/AgentIsComing/live-screen-share-releases/internal/quality"
	"github.com/AgentIsComing/live-screen-share-releases/internal/session"
	"github.com/AgentIsComing/live-screen-share-releases/internal/signaling"
	"github.com/AgentIsComing/live-screen-share-releases/internal/ui"
)

// liveSession wires a signaling client, a coordinator and the status view
// for one role.
type liveSession struct {
	cfg    *config.Config
	logger *slog.Logger
	client *signaling.Client
	coord  *session.Coordinator
	view   *ui.StatusView
}

type sessionOptions struct {
	role    string
	roomID  string
	code    string
	retry   bool
	onTrack func(peerID string, track *webrtc.TrackRemote)
}

func newLiveSession(cfg *config.Config, opts sessionOptions) (*liveSession, error) {
	logger := slog.Default()
	factory, err := media.NewFactory(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &liveSession{cfg: cfg, logger: logger}
	s.client = signaling.NewClient(cfg.SignalURL,
		signaling.WithLogger(logger),
		signaling.OnConnect(func() { s.coord.SignalingConnected() }),
		signaling.OnDisconnect(func(err error) { s.coord.SignalingLost(err) }),
	)

	s.coord, err = session.New(session.Config{
		Role:     opts.role,
		RoomID:   opts.roomID,
		Media:    factory,
		Signaler: s.client,
		Quality:  cfg.Quality,
		OnStatus: s.onStatus,
		OnTrack:  opts.onTrack,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	controls := ui.Controls{CycleProfile: s.cycleProfile}
	if opts.retry {
		controls.Retry = func() {
			if err := s.coord.Connect(); err != nil {
				logger.Warn("retry failed", "error", err)
			}
		}
	}
	s.view = ui.NewStatusView(ui.Header{
		Role:     opts.role,
		RoomID:   opts.roomID,
		ClientID: s.coord.ClientID(),
		Signal:   cfg.SignalURL,
		Code:     opts.code,
	}, controls)
	s.view.SetProfile(cfg.Quality.Profile.Name)
	return s, nil
}

// onStatus runs on the coordinator goroutine, so peer refreshes that call
// back into the coordinator go through their own goroutine.
func (s *liveSession) onStatus(st session.Status) {
	s.view.Push(st)
	if st.Kind == session.PeerConnected || st.Kind == session.PeerDisconnected {
		go s.view.SetPeers(s.coord.Peers())
	}
}

func (s *liveSession) cycleProfile() string {
	current := s.coord.Quality()
	next := quality.NextProfile(current.Profile.Name)
	q, err := s.coord.SetQuality(next.Name, current.Bitrate)
	if err != nil {
		return current.Profile.Name
	}
	return q.Profile.Name
}

// start runs the coordinator, the signaling client and the message
// dispatcher until ctx is done. The returned func waits for all three.
func (s *liveSession) start(ctx context.Context) (wait func()) {
	handler := signaling.NewHandler(s.client.Incoming(), s.coord, s.logger)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.coord.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.client.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		handler.Start()
	}()
	return wg.Wait
}

// show blocks on the status view. Quitting from the view is not an error.
func (s *liveSession) show(ctx context.Context) error {
	err := s.view.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
