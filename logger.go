package lww

import (
	"io"
	"log/slog"
	"os"
)

// Logger receives diagnostics from a collection.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type slogLogger struct {
	logger *slog.Logger
}

const prefix = "[lww] "

// NewLogger returns a Logger writing text records at or above level to w.
func NewLogger(w io.Writer, level slog.Level) Logger {
	return &slogLogger{slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))}
}

// DefaultLogger logs warnings and errors to stderr.
func DefaultLogger() Logger {
	return NewLogger(os.Stderr, slog.LevelWarn)
}

// NopLogger discards everything.
func NopLogger() Logger {
	return NewLogger(io.Discard, slog.LevelError+1)
}

func (l *slogLogger) Debug(msg string, args ...any) {
	l.logger.Debug(prefix+msg, args...)
}

func (l *slogLogger) Info(msg string, args ...any) {
	l.logger.Info(prefix+msg, args...)
}

func (l *slogLogger) Warn(msg string, args ...any) {
	l.logger.Warn(prefix+msg, args...)
}

func (l *slogLogger) Error(msg string, args ...any) {
	l.logger.Error(prefix+msg, args...)
}
