// Package logging provides logger setup and helpers for keeping sensitive
// identifiers out of log output.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"sentinel-ids/internal/config"
)

// Setup builds the process logger from configuration and installs it as the
// slog default. Unknown levels fall back to info, unknown formats to JSON.
func Setup(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
