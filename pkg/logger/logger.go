package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a logger that writes colored, human-readable lines to stderr.
// Extraction runs last hours in a terminal; the color handler makes retry
// warnings and checkpoint saves easy to spot in the scrollback.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a logger with color support using a custom writer.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
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
