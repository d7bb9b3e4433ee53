package app

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the application logger. Console output is human-readable
// text; a configured log file additionally receives JSON lines through a
// size-rotated writer.
func newLogger(logFile string, verbose bool) (*slog.Logger, func() error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	console := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if logFile == "" {
		return slog.New(console), func() error { return nil }
	}

	rotated := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	fileHandler := slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: level})
	return slog.New(teeHandler{console, fileHandler}), rotated.Close
}

// teeHandler fans every record out to both handlers.
type teeHandler struct {
	a, b slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.a.Enabled(ctx, level) || t.b.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	if t.a.Enabled(ctx, r.Level) {
		first = t.a.Handle(ctx, r.Clone())
	}
	if t.b.Enabled(ctx, r.Level) {
		if err := t.b.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{t.a.WithAttrs(attrs), t.b.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{t.a.WithGroup(name), t.b.WithGroup(name)}
}

var _ io.Closer = (*lumberjack.Logger)(nil)
