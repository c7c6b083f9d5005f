// Package logging builds the process-wide logger. Both binaries emit JSON to
// stdout with a service attribute so api and worker lines interleave cleanly
// in aggregated output.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger returns the root logger for one binary. The level string
// accepts the LOG_LEVEL spellings seen in deployment manifests; anything
// unrecognized falls back to info rather than failing startup.
func NewJSONLogger(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With(slog.String("service", service))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
