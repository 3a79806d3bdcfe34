// Package logging builds the relief [*slog.Logger] and carries it through
// context values. Every record carries service=relief so logs from the API,
// the sync workers and the CLI can be told apart once aggregated.
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
//	LOG_SOURCE = true                         (adds file:line to each record)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Service is the value of the service attribute on every record.
const Service = "relief"

type contextKey struct{}

// New returns a logger writing to stderr, configured from the environment.
func New() *slog.Logger {
	return NewWriter(os.Stderr)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(os.Getenv("LOG_LEVEL")),
		AddSource: os.Getenv("LOG_SOURCE") == "true",
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", Service))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

func parseLevel(s string) slog.Level {
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
