// Package logging builds the process-wide structured logger. Both binaries
// log JSON to stdout with a "service" attribute so worker and api lines stay
// distinguishable in an aggregated stream.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger returns a slog logger at the given level; unknown level
// strings fall back to info.
func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
