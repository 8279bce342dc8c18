// Package logging defines the structured-logging interface used across
// authkeeper. Backends wrap log/slog or zerolog and are picked by config.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "session issued", "user_id", id, "expires_at", exp)
type Logger interface {
	// Debug logs diagnostic detail that is off in production.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Backend names accepted by New.
const (
	BackendSlog    = "slog"
	BackendZerolog = "zerolog"
)

// New builds a JSON logger writing to w. Unknown backends fall back to
// zerolog; unknown levels fall back to info.
func New(backend, level string, w io.Writer) Logger {
	if strings.EqualFold(backend, BackendSlog) {
		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel(level)})
		return NewSlogLogger(slog.New(h))
	}
	return NewZerologLogger(w, level)
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return NewZerologLogger(io.Discard, "disabled")
}
