package flanngo

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with consistent field names for the engine's
// operations.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler. If handler is
// nil, a text handler to stderr at info level is used.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // unreachable level
	})
	return &Logger{Logger: slog.New(handler)}
}

// WithAlgorithm adds the algorithm family field to the logger.
func (l *Logger) WithAlgorithm(name string) *Logger {
	return &Logger{Logger: l.Logger.With("algorithm", name)}
}

// LogBuild logs an index build.
func (l *Logger) LogBuild(ctx context.Context, rows, dim int, speedup float32, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "build failed",
			"rows", rows,
			"dim", dim,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "build completed",
		"rows", rows,
		"dim", dim,
		"speedup", speedup,
		"duration", duration,
	)
}

// LogSearch logs a k-NN search batch.
func (l *Logger) LogSearch(ctx context.Context, queries, k int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"queries", queries,
			"k", k,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		"queries", queries,
		"k", k,
		"duration", duration,
	)
}

// LogRadiusSearch logs a radius search.
func (l *Logger) LogRadiusSearch(ctx context.Context, radius float32, found int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "radius search failed",
			"radius", radius,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "radius search completed",
		"radius", radius,
		"found", found,
		"duration", duration,
	)
}

// LogSave logs an index save.
func (l *Logger) LogSave(ctx context.Context, target string, bytes int64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"target", target,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "save completed",
		"target", target,
		"bytes", bytes,
		"duration", duration,
	)
}

// LogLoad logs an index load.
func (l *Logger) LogLoad(ctx context.Context, source string, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"source", source,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "load completed",
		"source", source,
		"duration", duration,
	)
}
