// Package observability provides the pipeline's metrics and structured
// logging.
package observability

import (
	"log/slog"
	"os"

	"github.com/couchcryptid/hazard-data-pipeline/internal/config"
)

// NewLogger builds the process logger from the log configuration. Unknown
// levels fall back to info; unknown formats fall back to JSON.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
