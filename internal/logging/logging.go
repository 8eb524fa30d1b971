// Package logging builds the application's slog loggers. Components
// derive children via logger.With("component", name).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler level and output encoding.
type Options struct {
	Level string
	// Format is "text" or "json"; anything else falls back to text.
	Format string
}

// New creates a logger writing to stdout.
func New(opts Options) *slog.Logger {
	return NewWithWriter(os.Stdout, opts)
}

// NewWithWriter creates a logger targeting w.
func NewWithWriter(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: levelFromString(opts.Level)}

	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
