// Package observability provides structured logging and Prometheus
// metrics for the ingestion and retrieval pipelines.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ContextKey is the type for context keys carried into log records.
type ContextKey string

// RequestIDKey correlates all log lines produced while handling one
// ingestion or retrieval request.
const RequestIDKey ContextKey = "request_id"

// LogConfig configures logger output.
type LogConfig struct {
	// Level sets the minimum level: "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// Format selects "json" (production) or "text" (development).
	Format string `yaml:"format"`

	// Output defaults to os.Stdout.
	Output io.Writer `yaml:"-"`

	// AddSource includes file:line in records.
	AddSource bool `yaml:"add_source"`
}

// Logger wraps slog with request-id correlation from context.
type Logger struct {
	logger *slog.Logger
}

// NewLogger builds a Logger from config.
func NewLogger(cfg LogConfig) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

// NopLogger returns a logger that discards everything. Used in tests.
func NopLogger() *Logger {
	return NewLogger(LogConfig{Level: "error", Output: io.Discard})
}

// With returns a logger carrying additional fixed attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// Debug logs at debug level with context correlation.
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, l.withRequestID(ctx, args)...)
}

// Info logs at info level with context correlation.
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, l.withRequestID(ctx, args)...)
}

// Warn logs at warn level with context correlation.
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, l.withRequestID(ctx, args)...)
}

// Error logs at error level with context correlation.
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, l.withRequestID(ctx, args)...)
}

func (l *Logger) withRequestID(ctx context.Context, args []any) []any {
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		return append(args, "request_id", id)
	}
	return args
}

// WithRequestID stamps a request id onto the context for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
