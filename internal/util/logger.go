// Package util provides process-level helpers: slog setup and virtual
// serial pairs for simulation.
package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"PicarNav/internal/model"
)

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds the process logger from cfg and installs it as the
// slog default. Output goes to stderr and, when cfg.Dir is set, to
// picarx_<timestamp>.log in that directory. The returned func closes the
// log file.
func NewLogger(cfg model.LogConfig) (*slog.Logger, func() error, error) {
	return newLogger(cfg, os.Stderr, time.Now())
}

func newLogger(cfg model.LogConfig, stderr io.Writer, now time.Time) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	out := stderr
	closeFn := func() error { return nil }
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		name := filepath.Join(cfg.Dir, "picarx_"+now.Format("20060102_150405")+".log")
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(stderr, f)
		closeFn = f.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch cfg.Format {
	case "json":
		h = slog.NewJSONHandler(out, opts)
	case "text", "":
		h = slog.NewTextHandler(out, opts)
	default:
		_ = closeFn()
		return nil, nil, fmt.Errorf("log format %q must be text or json", cfg.Format)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// Info logs a formatted message at info level on the default logger.
func Info(msg string, args ...any) {
	slog.Info(fmt.Sprintf(msg, args...))
}

// Warn logs a formatted message at warn level on the default logger.
func Warn(msg string, args ...any) {
	slog.Warn(fmt.Sprintf(msg, args...))
}

// Error logs a formatted message at error level on the default logger.
func Error(msg string, args ...any) {
	slog.Error(fmt.Sprintf(msg, args...))
}
