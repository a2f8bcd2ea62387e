package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PicarNav/internal/journal"
	"PicarNav/internal/model"
)

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestConfigShowDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "none.yml")
	out, err := execute(t, context.Background(), "config", "show", "-c", missing)
	require.NoError(t, err)
	assert.Contains(t, out, "defaults shown")
	assert.Contains(t, out, "safe_distance: 40")
	assert.Contains(t, out, "stop_wait_time: 2s")
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yml")
	require.NoError(t, os.WriteFile(good, []byte("obstacle:\n  safe_distance: 50\n"), 0o644))
	out, err := execute(t, context.Background(), "config", "validate", "-c", good)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("obstacle:\n  danger_distance: 60\n"), 0o644))
	_, err = execute(t, context.Background(), "config", "validate", "-c", bad)
	assert.Error(t, err)

	_, err = execute(t, context.Background(), "config", "validate", "-c", filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	rf := &runFlags{}
	cmd := &cobra.Command{Use: "run"}
	rf.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--ws", ":9000", "--journal", "ticks.db", "--line-source", "vision", "--baud", "57600"}))

	cfg := model.DefaultConfig()
	rf.apply(cmd, &cfg)
	assert.Equal(t, ":9000", cfg.Operator.WSAddr)
	assert.Equal(t, "ticks.db", cfg.Journal.Path)
	assert.Equal(t, model.LineSourceVision, cfg.Navigation.LineSource)
	assert.Equal(t, 57600, cfg.Board.Baud)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Board.Device, "unset flags keep the config value")
	assert.Empty(t, cfg.Operator.MQTT.Broker)
}

func TestSimulateRunsUntilCancelled(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("motor:\n  ramp_step: 1ms\nlog:\n  level: error\n"), 0o644))
	journalPath := filepath.Join(dir, "ticks.db")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := execute(t, ctx, "simulate", "-c", cfgPath, "--journal", journalPath, "--seed", "3")
	require.NoError(t, err)

	store, err := journal.Open(journalPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Positive(t, runs[0].Ticks)
}
