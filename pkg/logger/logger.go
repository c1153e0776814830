// Package logger provides structured logging for fixloop.
package logger

import (
	"log/slog"
	"os"
	"sync"
)

// Logger is the logging interface used across fixloop components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// SlogLogger adapts *slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps an existing slog logger.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l}
}

// NewLogger creates a logger writing to stderr in the given format.
func NewLogger(debug bool, format string) *SlogLogger {
	return &SlogLogger{logger: slog.New(newHandler(debug, format))}
}

// Debug logs a debug message.
func (l *SlogLogger) Debug(msg string, args ...any) { l.slog().Debug(msg, args...) }

// Info logs an info message.
func (l *SlogLogger) Info(msg string, args ...any) { l.slog().Info(msg, args...) }

// Warn logs a warning message.
func (l *SlogLogger) Warn(msg string, args ...any) { l.slog().Warn(msg, args...) }

// Error logs an error message.
func (l *SlogLogger) Error(msg string, args ...any) { l.slog().Error(msg, args...) }

// With returns a logger carrying the given attributes.
func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{logger: l.slog().With(args...)}
}

// WithGroup returns a logger that nests attributes under name.
func (l *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{logger: l.slog().WithGroup(name)}
}

func (l *SlogLogger) slog() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewLogger(false, "text")
)

// SetupLogger configures the global logger.
func SetupLogger(debug bool, format string) {
	SetGlobalLogger(NewLogger(debug, format))
}

// SetGlobalLogger replaces the global logger.
func SetGlobalLogger(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

func newHandler(debug bool, format string) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch format {
	case "json":
		return slog.NewJSONHandler(os.Stderr, opts)
	default:
		return slog.NewTextHandler(os.Stderr, opts)
	}
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	GetGlobalLogger().Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	GetGlobalLogger().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	GetGlobalLogger().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	GetGlobalLogger().Error(msg, args...)
}

// WithTool returns a logger with tool context.
func WithTool(tool string) Logger {
	return GetGlobalLogger().With("tool", tool)
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(_ string, _ ...any)   {}
func (nopLogger) Info(_ string, _ ...any)    {}
func (nopLogger) Warn(_ string, _ ...any)    {}
func (nopLogger) Error(_ string, _ ...any)   {}
func (n nopLogger) With(_ ...any) Logger     { return n }
func (n nopLogger) WithGroup(_ string) Logger { return n }
