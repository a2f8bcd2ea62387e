package core

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PicarNav/internal/journal"
	"PicarNav/internal/model"
)

const script = `
- line: {detected: true, x: 320, y: 400}
  repeat: 5
- line: {detected: true, x: 400, y: 400}
  repeat: 5
`

func TestSystemSimulatedRun(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "script.yml")
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o644))

	cfg := testConfig()
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	cfg.Operator.WSAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sys, err := NewSystem(ctx, cfg, Options{Simulate: true, Seed: 7, Script: scriptPath, Loop: true}, discard)
	require.NoError(t, err)
	require.NotNil(t, sys.Sim)
	require.NotNil(t, sys.Console)
	require.NotNil(t, sys.Journal)

	done := make(chan error, 1)
	go func() { done <- sys.Run(ctx) }()
	require.Eventually(t, func() bool { return sys.Robot.Stats().Ticks >= 20 }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return sys.Console.Addr() != "" }, time.Second, time.Millisecond)

	resp, err := http.Get("http://" + sys.Console.Addr() + "/api/status")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, sys.Robot.RunID, status["run_id"])
	assert.Equal(t, "following_line", status["state"])

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, model.StateStopped, sys.Robot.State())
	l, r := sys.Sim.Wheels()
	assert.Zero(t, l)
	assert.Zero(t, r)

	store, err := journal.Open(cfg.Journal.Path)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, sys.Robot.RunID, runs[0].ID)
	assert.GreaterOrEqual(t, runs[0].Ticks, 20)
}

func TestSystemRequiresCameraForVisionLine(t *testing.T) {
	cfg := testConfig()
	cfg.Navigation.LineSource = model.LineSourceVision
	_, err := NewSystem(context.Background(), cfg, Options{Simulate: true}, discard)
	assert.Error(t, err)
}

func TestSystemRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Obstacle.DangerDistance = 50
	_, err := NewSystem(context.Background(), cfg, Options{Simulate: true}, discard)
	assert.Error(t, err)
}
