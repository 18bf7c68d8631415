// Package logging configures the process-wide slog.Logger every cmd
// binary shares, mirroring the teacher's -log-format/-log-level flag
// pair (cmd/download-crates/main.go) generalized to the fifth
// "critical" level the CLI envelope adds.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds an slog.Handler from format ("text"|"json") and level
// ({debug,info,warning,error,critical}), installs it as the default
// logger, and returns it so callers can build scoped loggers from it.
// Unrecognized values fall back to text/info, matching the teacher's
// defaulting behavior rather than rejecting the flag.
func Setup(format, level string) *slog.Logger {
	lvl := slog.LevelInfo
	critical := false
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warning", "warn":
		lvl = slog.LevelWarn
	case "error", "err":
		lvl = slog.LevelError
	case "critical":
		// slog has four levels; critical is carried as an Error record
		// with an extra attribute rather than inventing a fifth slog.Level.
		lvl = slog.LevelError
		critical = true
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	if critical {
		handler = handler.WithAttrs([]slog.Attr{slog.Bool("critical", true)})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
