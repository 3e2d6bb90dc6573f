package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/simp-lee/epubfix/internal/config"
)

// newLogger builds the process logger. verbose forces debug level and quiet
// forces error level; quiet wins when both are set.
func newLogger(w io.Writer, cfg config.LogConfig, quiet, verbose bool) *slog.Logger {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// parseLevel maps a config level name to a slog level. Unknown names yield info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
