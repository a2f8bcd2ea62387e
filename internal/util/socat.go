package util

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// SocatManager manages the lifecycle of socat-created virtual serial
// pairs. The simulator serves the board protocol on one end while the
// robot opens the other as if it were the HAT's serial port.
type SocatManager struct {
	mu     sync.Mutex
	cmds   []*exec.Cmd
	links  []string
	closed bool
	logger *slog.Logger
	binary string
}

// NewSocatManager initializes an empty manager.
func NewSocatManager(logger *slog.Logger) *SocatManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocatManager{logger: logger.With("component", "virt-serial"), binary: "socat"}
}

// Available reports whether socat is on PATH.
func (m *SocatManager) Available() bool {
	_, err := exec.LookPath(m.binary)
	return err == nil
}

// CreatePair starts a socat process that links two PTYs (bidirectional)
// and waits until both links exist.
func (m *SocatManager) CreatePair(ctx context.Context, left, right string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("socat manager closed")
	}

	cmd := exec.Command(
		m.binary, "-d", "-d",
		fmt.Sprintf("pty,raw,echo=0,link=%s", left),
		fmt.Sprintf("pty,raw,echo=0,link=%s", right),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start socat: %w", err)
	}
	m.logger.Info("started socat", "pid", cmd.Process.Pid, "left", left, "right", right)
	m.cmds = append(m.cmds, cmd)
	m.links = append(m.links, left, right)

	return waitForLinks(ctx, 50*time.Millisecond, left, right)
}

func waitForLinks(ctx context.Context, poll time.Duration, paths ...string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for {
		missing := ""
		for _, p := range paths {
			if _, err := os.Lstat(p); err != nil {
				missing = p
				break
			}
		}
		if missing == "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", missing, ctx.Err())
		case <-time.After(poll):
		}
	}
}

// Cleanup stops all socat processes and removes created links. It is
// idempotent.
func (m *SocatManager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for _, cmd := range m.cmds {
		if cmd.Process != nil {
			m.logger.Debug("killing socat", "pid", cmd.Process.Pid)
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
	}
	for _, path := range m.links {
		if _, err := os.Lstat(path); err == nil {
			_ = os.Remove(path)
			m.logger.Debug("removed link", "path", path)
		}
	}
	m.logger.Info("virtual serial cleanup complete", "pairs", len(m.links)/2)
}
