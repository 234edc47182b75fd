// Package logger configures the process-wide structured logger.
package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Options selects level, format and an optional log file mirrored next to stderr.
type Options struct {
	Level  string
	Format string
	File   string
}

// Setup builds the default logger and routes the standard log package through it.
// The returned closer releases the log file, if any.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = f
	}

	hopts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, hopts)
	} else {
		h = slog.NewTextHandler(out, hopts)
	}

	defaultLogger = slog.New(h)
	slog.SetDefault(defaultLogger)
	log.SetOutput(out)

	return defaultLogger, closer, nil
}

// L returns the default logger, falling back to a stderr text logger.
func L() *slog.Logger {
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
