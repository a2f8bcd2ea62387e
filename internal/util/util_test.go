package util

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PicarNav/internal/model"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewLoggerJSONWithFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	var stderr bytes.Buffer
	now := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	logger, closeFn, err := newLogger(model.LogConfig{Level: "warn", Format: "json", Dir: dir}, &stderr, now)
	require.NoError(t, err)

	logger.Info("hidden")
	Warn("distance %.1f", 12.5)
	require.NoError(t, closeFn())

	var rec map[string]any
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "distance 12.5", rec["msg"])

	file, err := os.ReadFile(filepath.Join(dir, "picarx_20260501_093000.log"))
	require.NoError(t, err)
	assert.Equal(t, stderr.String(), string(file))
}

func TestNewLoggerRejectsBadFormat(t *testing.T) {
	_, _, err := newLogger(model.LogConfig{Level: "info", Format: "xml"}, &bytes.Buffer{}, time.Now())
	assert.Error(t, err)
}

func TestWaitForLinks(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, nil, 0o644))

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(b, nil, 0o644)
	}()
	require.NoError(t, waitForLinks(context.Background(), 5*time.Millisecond, a, b))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, waitForLinks(ctx, 5*time.Millisecond, filepath.Join(dir, "missing")))
}

func TestSocatCleanupIdempotent(t *testing.T) {
	m := NewSocatManager(nil)
	m.Cleanup()
	m.Cleanup()
	assert.Error(t, m.CreatePair(context.Background(), "/tmp/x", "/tmp/y"))
}
