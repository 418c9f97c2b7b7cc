// Package logging implements ports.Logger over log/slog, with a
// tint-colored handler for terminals and a plain JSON handler for
// production log collection.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"

	"agentruntime/ports"
)

// Logger adapts a *slog.Logger to ports.Logger.
type Logger struct {
	slog *slog.Logger
}

var _ ports.Logger = (*Logger)(nil)

// NewTint builds a human-readable, colorized Logger for local development
// and interactive terminals, writing to output.
func NewTint(output io.Writer) *Logger {
	handler := tint.NewHandler(output, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02 15:04:05.000Z07:00",
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
	return &Logger{slog: slog.New(handler)}
}

// NewJSON builds a structured JSON Logger for production log collection,
// writing to output.
func NewJSON(output io.Writer) *Logger {
	return &Logger{slog: slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// Default builds a tint-colored Logger writing to stderr.
func Default() *Logger {
	return NewTint(os.Stderr)
}

// With returns a Logger that annotates every record with the given
// key/value attributes, for scoping a logger to one run or component.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Slog exposes the underlying *slog.Logger for callers (e.g. http
// middleware) that want structured logging without the narrower
// ports.Logger interface.
func (l *Logger) Slog() *slog.Logger { return l.slog }
