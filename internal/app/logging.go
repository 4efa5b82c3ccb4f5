package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ent0n29/docbot/internal/config"
)

// NewLogger builds the process logger from APP_LOG_LEVEL and APP_LOG_FORMAT.
// Config validation has already rejected unknown formats.
func NewLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
