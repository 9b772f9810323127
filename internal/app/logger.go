package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. Deployments set LOG_FORMAT=json for
// ingestion; the text handler keeps source locations for local debugging.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level, AddSource: true})
	}
	return slog.New(handler).With(slog.String("service", "meridian"))
}
