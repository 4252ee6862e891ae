// Package logging configures the process-wide slog loggers and hands out
// service-scoped children.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Add trace and fatal level names.
var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

// Config controls console and file output.
type Config struct {
	Level      string // trace, debug, info, warn, error
	JSON       bool   // JSON console output instead of text
	FilePath   string // optional rotating log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu         sync.RWMutex
	baseLogger *slog.Logger
	fileCloser io.Closer
)

// replaceLevel renders the custom TRACE/FATAL level names.
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		levelLabel, exists := levelNames[level]
		if !exists {
			levelLabel = level.String()
		}
		a.Value = slog.StringValue(levelLabel)
	}
	return a
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
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

// Init installs the console logger (and file logger when configured) as the
// slog default. Calling Init again replaces the previous configuration.
func Init(cfg Config) error {
	return InitWithWriter(os.Stderr, cfg)
}

// InitWithWriter is Init with an explicit console writer.
func InitWithWriter(console io.Writer, cfg Config) error {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}

	var consoleHandler slog.Handler
	if cfg.JSON {
		consoleHandler = slog.NewJSONHandler(console, opts)
	} else {
		consoleHandler = slog.NewTextHandler(console, opts)
	}

	handler := consoleHandler
	var closer io.Closer
	if cfg.FilePath != "" {
		writer, err := newRotatingWriter(cfg)
		if err != nil {
			return err
		}
		closer = writer
		handler = fanout{consoleHandler, slog.NewJSONHandler(writer, opts)}
	}

	mu.Lock()
	defer mu.Unlock()
	if fileCloser != nil {
		_ = fileCloser.Close()
	}
	fileCloser = closer
	baseLogger = slog.New(handler)
	slog.SetDefault(baseLogger)
	return nil
}

func newRotatingWriter(cfg Config) (*lumberjack.Logger, error) {
	// lumberjack doesn't create directories
	logDir := filepath.Dir(cfg.FilePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	w := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
	}
	if cfg.MaxSizeMB > 0 {
		w.MaxSize = cfg.MaxSizeMB
	}
	if cfg.MaxBackups > 0 {
		w.MaxBackups = cfg.MaxBackups
	}
	if cfg.MaxAgeDays > 0 {
		w.MaxAge = cfg.MaxAgeDays
	}
	return w, nil
}

// Close flushes and closes the file output, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileCloser == nil {
		return nil
	}
	err := fileCloser.Close()
	fileCloser = nil
	return err
}

// ForService creates a logger with the 'service' attribute added.
// Before Init it derives from slog.Default().
func ForService(serviceName string) *slog.Logger {
	mu.RLock()
	base := baseLogger
	mu.RUnlock()
	if base == nil {
		base = slog.Default()
	}
	return base.With("service", serviceName)
}

// Trace logs a trace message using the custom Trace level.
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.TODO(), LevelTrace, msg, args...)
}

// fanout duplicates records to several handlers.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
