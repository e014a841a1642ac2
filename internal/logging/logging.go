package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the default logger from LOG_LEVEL. Interactive commands
// only show errors unless asked otherwise.
func Init() {
	InitLevel(slog.LevelError)
}

// InitLevel is Init with a different fallback level, for long-running
// services whose operators expect to see lifecycle events.
func InitLevel(fallback slog.Level) {
	level := fallback

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		switch strings.ToLower(l) {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}
