package valloc

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with valloc-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithCapacity adds the arena capacity to the logger.
func (l *Logger) WithCapacity(capacity int) *Logger {
	return &Logger{
		Logger: l.Logger.With("capacity", capacity),
	}
}

// WithSize adds a size field to the logger.
func (l *Logger) WithSize(size int) *Logger {
	return &Logger{
		Logger: l.Logger.With("size", size),
	}
}

// LogAlloc logs an allocation.
func (l *Logger) LogAlloc(base, size int, err error) {
	if err != nil {
		l.Warn("alloc failed",
			"size", size,
			"error", err,
		)
	} else {
		l.Debug("alloc completed",
			"base", base,
			"size", size,
		)
	}
}

// LogFree logs a free.
func (l *Logger) LogFree(base, size int, err error) {
	if err != nil {
		l.Warn("free failed",
			"base", base,
			"error", err,
		)
	} else {
		l.Debug("free completed",
			"base", base,
			"size", size,
		)
	}
}

// LogRealloc logs a reallocation. moved reports whether the bytes were
// copied to a new chunk.
func (l *Logger) LogRealloc(oldBase, newBase, newSize int, moved bool, err error) {
	if err != nil {
		l.Warn("realloc failed",
			"base", oldBase,
			"size", newSize,
			"error", err,
		)
	} else {
		l.Debug("realloc completed",
			"old_base", oldBase,
			"new_base", newBase,
			"size", newSize,
			"moved", moved,
		)
	}
}

// LogAccess logs a failed read or write. Successful accesses are too frequent
// to log.
func (l *Logger) LogAccess(op AccessOp, offset, size int, err error) {
	if err == nil {
		return
	}
	l.Warn("access failed",
		"op", string(op),
		"offset", offset,
		"size", size,
		"error", err,
	)
}

// LogDump logs a heap dump.
func (l *Logger) LogDump(ctx context.Context, bytes int64, compression Compression, err error) {
	if err != nil {
		l.ErrorContext(ctx, "dump failed",
			"compression", compression.String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "dump written",
			"bytes", bytes,
			"compression", compression.String(),
		)
	}
}
