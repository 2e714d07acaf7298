package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// New builds the process logger.
//
// production: JSON lines, INFO and above unless level says otherwise
// anything else: human-readable text, DEBUG and above unless level says otherwise
func New(w io.Writer, environment, level string) *slog.Logger {
	prod := strings.EqualFold(environment, "production")

	lvl := slog.LevelDebug
	if prod {
		lvl = slog.LevelInfo
	}
	if parsed, ok := ParseLevel(level); ok {
		lvl = parsed
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if prod {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "cutout-bot"))
}

// ParseLevel maps "debug", "info", "warn", "error" (any case) to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// helper type for context key
type loggerKey struct{}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by WithContext, or fallback.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return fallback
}
