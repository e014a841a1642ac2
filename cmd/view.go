package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/AgentIsComing/live-screen-share-releases/internal/config"
	"github.com/AgentIsComing/live-screen-share-releases/internal/directory"
	"github.com/AgentIsComing/live-screen-share-releases/internal/media"
	"github.com/AgentIsComing/live-screen-share-releases/internal/protocol"
	"github.com/AgentIsComing/live-screen-share-releases/internal/ui"
)

var (
	viewOpts     config.Options
	viewCode     string
	viewPassword string
	viewRecord   string
)

var viewCmd = &cobra.Command{
	Use:     "view",
	Aliases: []string{"watch"},
	Short:   "Watch a room's broadcast",
	Long: `Join a room as a viewer and receive the host's stream.

A room can be given directly, looked up in the directory by id and
password, or by a five-digit join code.

Examples:
  livescreen view --room demo
  livescreen view --code 48213
  livescreen view --room demo --password hunter2
  livescreen view --room demo --record ./recordings`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viewOpts)
		if err != nil {
			return err
		}
		if err := resolveRoom(cmd.Context(), cfg); err != nil {
			return err
		}
		if cfg.RoomID == "" {
			return errors.New("no room: pass --room or --code")
		}
		return runView(cmd.Context(), cfg)
	},
}

// resolveRoom fills in the room and signal URL from the directory when a
// code or password was given.
func resolveRoom(ctx context.Context, cfg *config.Config) error {
	if viewCode == "" && viewPassword == "" {
		return nil
	}
	dir := directory.NewClient(cfg.DirectoryURL)

	stop := ui.RunConnectionSpinner("Looking up room...")
	var (
		res *directory.Resolution
		err error
	)
	if viewCode != "" {
		res, err = dir.ResolveCode(ctx, viewCode)
	} else {
		if cfg.RoomID == "" {
			stop()
			return errors.New("--password needs --room")
		}
		res, err = dir.Resolve(ctx, cfg.RoomID, viewPassword)
	}
	stop()

	switch {
	case errors.Is(err, protocol.ErrNotFound):
		return errors.New("room not found or expired")
	case errors.Is(err, protocol.ErrBadPassword):
		return errors.New("wrong room password")
	case err != nil:
		return fmt.Errorf("directory lookup: %w", err)
	}

	cfg.SignalURL = config.NormalizeSignalURL(res.Address)
	if cfg.HealthURL, err = config.HealthURL(cfg.SignalURL); err != nil {
		return err
	}
	if res.RoomID != "" {
		cfg.RoomID = res.RoomID
	}
	return nil
}

func runView(ctx context.Context, cfg *config.Config) error {
	if viewRecord != "" {
		if err := os.MkdirAll(viewRecord, 0o755); err != nil {
			return err
		}
	}
	receiver := media.NewReceiver(viewRecord, nil)

	sessCtx, cancel := context.WithCancel(ctx)
	s, err := newLiveSession(cfg, sessionOptions{
		role:   protocol.RoleViewer,
		roomID: cfg.RoomID,
		code:   viewCode,
		retry:  true,
		onTrack: func(peerID string, track *webrtc.TrackRemote) {
			receiver.Consume(sessCtx, peerID, track)
		},
	})
	if err != nil {
		cancel()
		return err
	}

	started := time.Now()
	wait := s.start(sessCtx)
	if err := s.coord.Connect(); err != nil {
		cancel()
		wait()
		return err
	}

	err = s.show(ctx)
	cancel()
	wait()
	receiver.Wait()
	printTrackStats(receiver, time.Since(started))
	return err
}

func printTrackStats(r *media.Receiver, elapsed time.Duration) {
	stats := r.Stats()
	if len(stats) == 0 {
		return
	}
	rows := make([]ui.TrackRow, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, ui.TrackRow{Kind: st.Kind, Codec: st.Codec, Packets: st.Packets, Bytes: st.Bytes})
	}
	fmt.Fprintln(ui.Output, ui.TrackTableView(rows, elapsed))
}

func init() {
	config.BindFlags(viewCmd.Flags(), &viewOpts)
	viewCmd.Flags().StringVarP(&viewCode, "code", "c", "", "five-digit join code")
	viewCmd.Flags().StringVar(&viewPassword, "password", "", "room password for a directory lookup")
	viewCmd.Flags().StringVar(&viewRecord, "record", "", "directory to record received tracks into")
	rootCmd.AddCommand(viewCmd)
}
