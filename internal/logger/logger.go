// Package logger configures the process-wide slog logger and provides
// helpers for logging with explicit field maps and stack traces.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	File   string // optional log file path, appended to
}

var (
	// L is the process-wide logger. It is safe to use before Init.
	L = slog.Default()

	mu      sync.Mutex
	logFile *os.File
)

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Init builds the global logger from cfg and installs it as slog's default.
func Init(cfg Config) (*slog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = os.Stderr
	if path := strings.TrimSpace(cfg.File); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		if logFile != nil {
			_ = logFile.Close()
		}
		logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}

	L = New(out, cfg.Level, cfg.Format)
	slog.SetDefault(L)
	return L, nil
}

// New creates a logger writing to w without touching global state.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Close releases the log file opened by Init, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// Log writes msg at level with fields attached as attributes in key order.
func Log(ctx context.Context, l *slog.Logger, level slog.Level, msg string, fields map[string]any) {
	if l == nil {
		l = L
	}
	l.LogAttrs(ctx, level, msg, attrs(fields)...)
}

// Error logs msg at error level with err and the current goroutine stack.
func Error(ctx context.Context, l *slog.Logger, msg string, err error, fields map[string]any) {
	ErrorWithStack(ctx, l, msg, err, debug.Stack(), fields)
}

// ErrorWithStack is Error with a stack captured by the caller, typically
// inside a deferred recover where the panicking frames are still visible.
func ErrorWithStack(ctx context.Context, l *slog.Logger, msg string, err error, stack []byte, fields map[string]any) {
	if l == nil {
		l = L
	}
	list := attrs(fields)
	if err != nil {
		list = append(list, slog.Any("error", err))
	}
	list = append(list, slog.String("stack", string(stack)))
	l.LogAttrs(ctx, slog.LevelError, msg, list...)
}

func attrs(fields map[string]any) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		out = append(out, slog.Any(k, fields[k]))
	}
	return out
}
