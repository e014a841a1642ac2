package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AgentIsComing/live-screen-share-releases/internal/config"
	"github.com/AgentIsComing/live-screen-share-releases/internal/logging"
	"github.com/AgentIsComing/live-screen-share-releases/internal/server"
)

var serveOpts config.ServerOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Long: `Run the rendezvous server that pairs hosts with viewers.

Examples:
  livescreen serve
  PORT=8080 livescreen serve
  livescreen serve --host 127.0.0.1 --port 3001`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.InitLevel(slog.LevelInfo)

		cfg, err := config.LoadServer(serveOpts)
		if err != nil {
			return err
		}
		return server.Run(cmd.Context(), cfg.Addr())
	},
}

func bindServerFlags(cmd *cobra.Command, o *config.ServerOptions) {
	cmd.Flags().StringVar(&o.Host, "host", "", "listen host (env HOST)")
	cmd.Flags().IntVar(&o.Port, "port", 0, "listen port")
}

func init() {
	bindServerFlags(serveCmd, &serveOpts)
	rootCmd.AddCommand(serveCmd)
}
