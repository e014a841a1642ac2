package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AgentIsComing/live-screen-share-releases/internal/config"
	"github.com/AgentIsComing/live-screen-share-releases/internal/directory"
	"github.com/AgentIsComing/live-screen-share-releases/internal/logging"
	"github.com/AgentIsComing/live-screen-share-releases/internal/server"
	"github.com/AgentIsComing/live-screen-share-releases/internal/ui"
)

var (
	directoryServeOpts config.ServerOptions
	directoryURL       string
	dirRoom            string
	dirPassword        string
	dirAddress         string
	dirCode            string
	dirTTL             time.Duration
)

var directoryCmd = &cobra.Command{
	Use:     "directory",
	Aliases: []string{"dir"},
	Short:   "Run or query the room directory",
}

var directoryServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the room directory service",
	Long: `Run the HTTP service that maps rooms and join codes to signaling servers.

Examples:
  livescreen directory serve
  DIRECTORY_PORT=9000 DEFAULT_TTL_SECONDS=600 livescreen directory serve`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.InitLevel(slog.LevelInfo)

		cfg, err := config.LoadDirectory(directoryServeOpts)
		if err != nil {
			return err
		}
		svc := directory.NewService(directory.WithDefaultTTL(cfg.DefaultTTL))
		slog.Info("directory listening", "addr", cfg.Addr(), "default_ttl", cfg.DefaultTTL)
		return server.ListenAndServe(cmd.Context(), cfg.Addr(), directory.NewHandler(svc))
	},
}

var directoryRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a room and get a join code",
	Long: `Register a signaling address under a room id and password.

Examples:
  livescreen directory register --room demo --password hunter2 --address wss://signal.example.com/signal`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := directory.NewClient(directoryBase())
		reg, err := dir.Register(cmd.Context(), dirRoom, dirPassword, dirAddress, dirTTL)
		if err != nil {
			return err
		}
		ui.RenderSummary(ui.IconKey+" Registered", []ui.Row{
			{Label: "Room", Value: reg.RoomID},
			{Label: "Join code", Value: reg.Code},
			{Label: "Address", Value: reg.Address},
			{Label: "Expires", Value: reg.ExpiresAt.Local().Format(time.RFC1123)},
		})
		return nil
	},
}

var directoryResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Look up a room by code or by id and password",
	Long: `Resolve a join code, or a room id and password, to its signaling address.

Examples:
  livescreen directory resolve --code 48213
  livescreen directory resolve --room demo --password hunter2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := directory.NewClient(directoryBase())
		var (
			res *directory.Resolution
			err error
		)
		if dirCode != "" {
			res, err = dir.ResolveCode(cmd.Context(), dirCode)
		} else {
			res, err = dir.Resolve(cmd.Context(), dirRoom, dirPassword)
		}
		if err != nil {
			return err
		}
		ui.RenderSummary(ui.IconLink+" Room", []ui.Row{
			{Label: "Room", Value: res.RoomID},
			{Label: "Join code", Value: res.Code},
			{Label: "Address", Value: res.Address},
			{Label: "Expires", Value: res.ExpiresAt.Local().Format(time.RFC1123)},
		})
		return nil
	},
}

// directoryBase is the --url flag, then DIRECTORY_URL, then the default.
func directoryBase() string {
	cfg, err := config.Load(config.Options{DirectoryURL: directoryURL})
	if err != nil {
		if directoryURL != "" {
			return directoryURL
		}
		return config.DefaultDirectory
	}
	return cfg.DirectoryURL
}

func init() {
	bindServerFlags(directoryServeCmd, &directoryServeOpts)

	for _, c := range []*cobra.Command{directoryRegisterCmd, directoryResolveCmd} {
		c.Flags().StringVar(&directoryURL, "url", "", "directory service URL (env DIRECTORY_URL)")
		c.Flags().StringVarP(&dirRoom, "room", "r", "", "room ID")
		c.Flags().StringVar(&dirPassword, "password", "", "room password")
	}
	directoryRegisterCmd.Flags().StringVar(&dirAddress, "address", "", "signaling address (ws:// or wss://)")
	directoryRegisterCmd.Flags().DurationVar(&dirTTL, "ttl", 0, "entry lifetime (default 15m, clamped to 1m..1h)")
	directoryResolveCmd.Flags().StringVarP(&dirCode, "code", "c", "", "five-digit join code")

	directoryCmd.AddCommand(directoryServeCmd, directoryRegisterCmd, directoryResolveCmd)
	rootCmd.AddCommand(directoryCmd)
}
