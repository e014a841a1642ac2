package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AgentIsComing/live-screen-share-releases/internal/config"
	"github.com/AgentIsComing/live-screen-share-releases/internal/logging"
	"github.com/AgentIsComing/live-screen-share-releases/internal/server"
)

func main() {
	logging.InitLevel(slog.LevelInfo)

	cfg, err := config.LoadServer(config.ServerOptions{})
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg.Addr()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
