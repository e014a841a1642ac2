package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AgentIsComing/live-screen-share-releases/internal/config"
	"github.com/AgentIsComing/live-screen-share-releases/internal/directory"
	"github.com/AgentIsComing/live-screen-share-releases/internal/media"
	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
	"github.com/AgentIsComing/live-screen-share-releases/internal/roomid"
	"github.com/AgentIsComing/live-screen-share-releases/internal/session"
	"github.com/AgentIsComing/live-screen-share-releases/internal/ui"
)

var (
	hostOpts     config.Options
	hostVideo    string
	hostAudio    string
	hostPassword string
	hostPublish  bool
	hostTTL      time.Duration
)

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"broadcast"},
	Short:   "Broadcast to a room",
	Long: `Broadcast a stream to every viewer that joins the room.

The stream is read from an IVF (VP8, VP9 or AV1) video file and/or an Ogg
Opus audio file and replayed in a loop.

Examples:
  livescreen host --video screen.ivf
  livescreen host --video screen.ivf --audio mic.ogg --room demo
  livescreen host --video screen.ivf --room demo --password hunter2 --publish`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if hostVideo == "" && hostAudio == "" {
			return errors.New("nothing to broadcast: pass --video and/or --audio")
		}
		cfg, err := config.Load(hostOpts)
		if err != nil {
			return err
		}
		if cfg.RoomID == "" {
			cfg.RoomID = roomid.Generate()
		}
		return runHost(cmd.Context(), cfg)
	},
}

func runHost(ctx context.Context, cfg *config.Config) error {
	src, err := media.NewFileSource(hostVideo, hostAudio, nil)
	if err != nil {
		return err
	}

	var reg *directory.Registration
	if hostPublish {
		dir := directory.NewClient(cfg.DirectoryURL)
		stop := ui.RunConnectionSpinner("Publishing room...")
		reg, err = dir.Register(ctx, cfg.RoomID, hostPassword, cfg.SignalURL, hostTTL)
		stop()
		if err != nil {
			return fmt.Errorf("publish room: %w", err)
		}
	}

	printRoomSummary(cfg, reg)

	s, err := newLiveSession(cfg, sessionOptions{role: protocol.RoleHost, roomID: cfg.RoomID, code: codeOf(reg)})
	if err != nil {
		return err
	}

	// The session outlives ctx so broadcast-end can still be sent after an
	// interrupt.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	wait := s.start(sessCtx)
	defer func() {
		cancel()
		wait()
	}()

	if err := s.coord.StartCapture(src); err != nil {
		src.Close()
		return err
	}
	if reg != nil {
		go keepPublished(sessCtx, directory.NewClient(cfg.DirectoryURL), cfg, reg)
	}

	err = s.show(ctx)
	if stopErr := s.coord.StopCapture(); stopErr != nil && !errors.Is(stopErr, session.ErrStopped) {
		s.logger.Warn("stop capture", "error", stopErr)
	}
	return err
}

// keepPublished refreshes the directory entry at half its TTL.
func keepPublished(ctx context.Context, dir directory.Directory, cfg *config.Config, reg *directory.Registration) {
	ttl := directory.ClampTTL(time.Duration(reg.TTL)*time.Second, directory.DefaultTTL)
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := dir.Register(ctx, cfg.RoomID, hostPassword, cfg.SignalURL, ttl); err != nil {
				ui.PrintWarning("Directory refresh failed: " + err.Error())
			}
		}
	}
}

func codeOf(reg *directory.Registration) string {
	if reg == nil {
		return ""
	}
	return reg.Code
}

func printRoomSummary(cfg *config.Config, reg *directory.Registration) {
	rows := []ui.Row{
		{Label: "Room", Value: cfg.RoomID},
		{Label: "Signal", Value: cfg.SignalURL},
		{Label: "Profile", Value: cfg.Quality.Profile.Name},
		{Label: "Bitrate", Value: ui.FormatBitrate(cfg.Quality.EffectiveBitrate())},
	}
	if reg != nil {
		rows = append(rows,
			ui.Row{Label: "Join code", Value: reg.Code},
			ui.Row{Label: "Expires", Value: reg.ExpiresAt.Local().Format(time.Kitchen)},
		)
	}
	ui.RenderSummary(ui.IconLive+" Broadcasting", rows)
}

func init() {
	config.BindFlags(hostCmd.Flags(), &hostOpts)
	hostCmd.Flags().StringVar(&hostVideo, "video", "", "IVF video file to broadcast")
	hostCmd.Flags().StringVar(&hostAudio, "audio", "", "Ogg Opus audio file to broadcast")
	hostCmd.Flags().BoolVar(&hostPublish, "publish", false, "register the room with the directory and get a join code")
	hostCmd.Flags().StringVar(&hostPassword, "password", "", "room password for directory lookups")
	hostCmd.Flags().DurationVar(&hostTTL, "ttl", 0, "directory entry lifetime (default 15m, clamped to 1m..1h)")
	rootCmd.AddCommand(hostCmd)
}
