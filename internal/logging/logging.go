// Package logging builds the process logger. Records are written by a
// background goroutine so decode loops never wait on a slow terminal.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is text, json or auto. Auto picks text when Writer is a
	// terminal and json otherwise.
	Format string
	// Writer defaults to os.Stderr.
	Writer io.Writer
	// QueueSize bounds the async queue. Zero uses DefaultQueueSize.
	QueueSize int
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New builds a logger writing through an AsyncHandler. Call Close on the
// returned handler before exiting to flush queued records.
func New(opts Options) (*slog.Logger, *AsyncHandler, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		inner = slog.NewJSONHandler(w, hopts)
	case "text":
		inner = slog.NewTextHandler(w, hopts)
	case "", "auto":
		if isTerminal(w) {
			inner = slog.NewTextHandler(w, hopts)
		} else {
			inner = slog.NewJSONHandler(w, hopts)
		}
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	h := NewAsyncHandler(inner, opts.QueueSize)
	return slog.New(h), h, nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
