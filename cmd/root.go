package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AgentIsComing/live-screen-share-releases/internal/ui"
	"github.com/AgentIsComing/live-screen-share-releases/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "livescreen",
	Short: "Low-latency live screen sharing over WebRTC",
	Long: `livescreen broadcasts a screen to any number of viewers over WebRTC.

A small signaling server pairs a host with its viewers inside a named room.
Media flows peer to peer; the server only relays session negotiation.`,
	Version: version.Version,
}

// Execute runs the command tree. It is called once from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
