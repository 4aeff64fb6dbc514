// Package log provides the logging infrastructure shared by every stache
// component.
//
// Loggers are injected, not global: each component receives a log.Logger via
// its constructor and may add context with logger.With("component", ...).
// The CLI builds one logger at startup from configuration; tests use NewNop
// or NewWithWriter to capture output.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is an alias for *slog.Logger so components depend on the standard
// library type directly and keep access to With(), WithGroup(), etc.
type Logger = *slog.Logger

// Config defines logger options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// JSON switches output to JSON format. Default: text.
	JSON bool

	// AddSource includes source positions in log entries.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Useful for tests that need to
// inspect log output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop creates a logger that discards everything. Test use only.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a configuration string ("debug", "info", "warn", "error")
// to a slog.Level. Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
