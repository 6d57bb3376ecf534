package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// SlogLogger adapts a slog.Logger to the Logger interface. Messages with
// format verbs are rendered with fmt, otherwise args are treated as
// key/value attributes.
type SlogLogger struct {
	logger *slog.Logger
}

var (
	_ Logger         = (*SlogLogger)(nil)
	_ LoggerProvider = (*SlogLogger)(nil)
)

// NewSlogLogger builds a logger writing to w. Format is "json" or "text".
func NewSlogLogger(level, format string, w io.Writer) *SlogLogger {
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &SlogLogger{logger: slog.New(handler)}
}

// GetLogger returns a child logger tagged with the component name
func (l *SlogLogger) GetLogger(name string) Logger {
	return &SlogLogger{logger: l.logger.With("component", name)}
}

// Slog exposes the underlying logger
func (l *SlogLogger) Slog() *slog.Logger {
	return l.logger
}

func (l *SlogLogger) Debug(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *SlogLogger) Info(format string, args ...any) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *SlogLogger) Warn(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *SlogLogger) Error(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l *SlogLogger) log(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}

	if strings.Contains(format, "%") {
		l.logger.Log(ctx, level, fmt.Sprintf(format, args...))
		return
	}

	l.logger.Log(ctx, level, format, args...)
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

type defLoggerProvider struct{}

func (defLoggerProvider) GetLogger(string) Logger {
	return defLogger{}
}
