// Package core contains the runtime orchestration of the robot: the vision
// producer and control consumer goroutines, the telemetry hub, and the
// config-driven System that assembles devices, operator adapters and sinks.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"PicarNav/internal/model"
	"PicarNav/internal/nav"
	"PicarNav/internal/vision"
)

// ErrSnapshotChannelClosed is returned by the consumer when the snapshot
// channel was closed under it.
var ErrSnapshotChannelClosed = errors.New("snapshot channel closed")

// ErrCommandChannelClosed is logged when the command channel is closed;
// the consumer stops polling it and keeps driving.
var ErrCommandChannelClosed = errors.New("command channel closed")

// RobotDeps are the collaborators of a Robot. Camera may be nil when no
// vision is available; Commands and Telemetry may be nil.
type RobotDeps struct {
	Machine   *nav.Machine
	Motor     nav.MotorController
	Camera    vision.Camera
	Lines     vision.LineDetector
	Signs     vision.SignDetector
	Commands  <-chan model.ExternalCommand
	Telemetry *Telemetry
	Logger    *slog.Logger
}

// RobotStats are runtime counters.
type RobotStats struct {
	Ticks            uint64
	Snapshots        uint64
	SnapshotsDropped uint64
	Commands         uint64
}

// Robot runs the vision producer and the control consumer. The two
// goroutines share only the snapshot channel, the command channel and the
// context.
type Robot struct {
	RunID string

	cfg       model.Config
	machine   *nav.Machine
	motor     nav.MotorController
	camera    vision.Camera
	lines     vision.LineDetector
	signs     vision.SignDetector
	commands  <-chan model.ExternalCommand
	telemetry *Telemetry
	logger    *slog.Logger

	snapshots chan model.VisionSnapshot

	ticks     atomic.Uint64
	produced  atomic.Uint64
	dropped   atomic.Uint64
	commanded atomic.Uint64

	stop    chan struct{}
	runMu   sync.Mutex
	running bool
}

// NewRobot creates a Robot with a fresh run ID.
func NewRobot(cfg model.Config, deps RobotDeps) *Robot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	return &Robot{
		RunID:     runID,
		cfg:       cfg,
		machine:   deps.Machine,
		motor:     deps.Motor,
		camera:    deps.Camera,
		lines:     deps.Lines,
		signs:     deps.Signs,
		commands:  deps.Commands,
		telemetry: deps.Telemetry,
		logger:    logger.With("component", "robot", "run", runID),
		snapshots: make(chan model.VisionSnapshot, 1),
		stop:      make(chan struct{}),
	}
}

// Stats returns the runtime counters.
func (r *Robot) Stats() RobotStats {
	return RobotStats{
		Ticks:            r.ticks.Load(),
		Snapshots:        r.produced.Load(),
		SnapshotsDropped: r.dropped.Load(),
		Commands:         r.commanded.Load(),
	}
}

// State returns the navigation state.
func (r *Robot) State() model.NavigationState { return r.machine.State() }

// Stop requests shutdown of a running Robot. It is idempotent.
func (r *Robot) Stop() {
	select {
	case <-r.stop:
		// already closed
	default:
		close(r.stop)
	}
}

// Run starts both goroutines and blocks until ctx is cancelled, Stop is
// called or the consumer fails. On return the machine is Stopped and the
// motors have been stopped. The returned error is nil on a requested
// shutdown and the consumer's fatal error otherwise.
func (r *Robot) Run(ctx context.Context) error {
	r.runMu.Lock()
	if r.running {
		r.runMu.Unlock()
		return errors.New("robot already running")
	}
	r.running = true
	r.runMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	r.logger.Info("robot started", "line_source", r.cfg.Navigation.LineSource, "vision", r.camera != nil)

	var (
		wg       sync.WaitGroup
		fatalErr error
	)
	if r.camera != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.produce(ctx); err != nil {
				r.logger.Error("vision producer stopped", "err", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.consume(ctx); err != nil {
			fatalErr = err
			r.logger.Error("control consumer failed", "err", err, "state", r.machine.State())
			cancel()
		}
	}()
	wg.Wait()

	r.shutdown()
	return fatalErr
}

// shutdown moves the machine to Stopped and stops the motors.
func (r *Robot) shutdown() {
	r.machine.Shutdown()
	if r.motor != nil {
		if err := r.motor.Stop(); err != nil {
			r.logger.Error("final stop failed", "err", err)
			if eerr := r.motor.EmergencyStop(); eerr != nil {
				r.logger.Error("final emergency stop failed", "err", eerr)
			}
		}
	}
	s := r.Stats()
	r.logger.Info("robot stopped", "ticks", s.Ticks, "snapshots", s.Snapshots, "snapshots_dropped", s.SnapshotsDropped)
}

// produce captures frames, runs the detectors and offers snapshots,
// pacing itself to vision.interval.
func (r *Robot) produce(ctx context.Context) error {
	var seq uint64
	for {
		if ctx.Err() != nil {
			return nil
		}
		started := time.Now()

		frame, err := r.camera.Capture(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("capture failed", "err", err)
		case frame != nil:
			seq++
			snap := r.detect(seq, frame)
			r.produced.Add(1)
			if offerSnapshot(r.snapshots, snap) {
				r.dropped.Add(1)
			}
		}

		wait := r.cfg.Vision.Interval - time.Since(started)
		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// detect builds a snapshot from a frame, dropping signs below the
// confidence threshold.
func (r *Robot) detect(seq uint64, frame *vision.Frame) model.VisionSnapshot {
	var line model.LineDetection
	if r.lines != nil {
		line = r.lines.Detect(frame)
	}
	var signs []model.SignDetection
	if r.signs != nil {
		for _, s := range r.signs.DetectSigns(frame) {
			if s.Confidence >= r.cfg.Vision.ConfidenceThreshold {
				signs = append(signs, s)
			}
		}
	}
	ts := frame.Captured
	if ts.IsZero() {
		ts = time.Now()
	}
	return model.NewVisionSnapshot(seq, line, signs, ts)
}

// offerSnapshot puts snap into a capacity-1 channel without blocking,
// replacing an unconsumed older snapshot. It reports whether one was
// dropped. There is a single sender.
func offerSnapshot(ch chan model.VisionSnapshot, snap model.VisionSnapshot) bool {
	select {
	case ch <- snap:
		return false
	default:
	}
	dropped := false
	select {
	case <-ch:
		dropped = true
	default:
	}
	select {
	case ch <- snap:
	default:
	}
	return dropped
}

// consume runs one tick per iteration until ctx is done.
func (r *Robot) consume(ctx context.Context) error {
	commands := r.commands
	for {
		if ctx.Err() != nil {
			return nil
		}

		snap, err := awaitSnapshot(ctx, r.snapshots, r.cfg.Navigation.SnapshotWait)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		cmd, err := pollCommand(commands)
		if err != nil {
			r.logger.Warn("operator commands disabled", "err", err)
			commands = nil
		}
		if cmd != nil {
			r.commanded.Add(1)
			r.logger.Info("command received", "command", cmd.String(), "origin", cmd.Origin, "state", r.machine.State())
		}

		res, tickErr := r.machine.Tick(ctx, nav.TickInput{Snapshot: snap, Command: cmd})
		seq := r.ticks.Add(1)
		r.publish(seq, res, snap, cmd)
		if tickErr != nil {
			return fmt.Errorf("tick %d: %w", seq, tickErr)
		}
	}
}

// awaitSnapshot waits up to wait for a snapshot. No snapshot is not an
// error.
func awaitSnapshot(ctx context.Context, ch <-chan model.VisionSnapshot, wait time.Duration) (*model.VisionSnapshot, error) {
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, nil
	case snap, ok := <-ch:
		if !ok {
			return nil, ErrSnapshotChannelClosed
		}
		return &snap, nil
	case <-t.C:
		return nil, nil
	}
}

// pollCommand takes at most one queued command without blocking.
func pollCommand(ch <-chan model.ExternalCommand) (*model.ExternalCommand, error) {
	if ch == nil {
		return nil, nil
	}
	select {
	case c, ok := <-ch:
		if !ok {
			return nil, ErrCommandChannelClosed
		}
		return &c, nil
	default:
		return nil, nil
	}
}

func (r *Robot) publish(seq uint64, res nav.TickResult, snap *model.VisionSnapshot, cmd *model.ExternalCommand) {
	rec := model.Telemetry{
		RunID:     r.RunID,
		Seq:       seq,
		Time:      time.Now().UTC(),
		State:     res.State,
		Band:      res.Band,
		Distance:  -1,
		LineState: res.LineState,
		Directive: res.Directive,
	}
	if res.Distance.Valid {
		rec.Distance = res.Distance.CM
	}
	if snap != nil {
		rec.Snapshot = snap.Seq()
	}
	if cmd != nil {
		rec.Command = cmd.String()
	}
	if res.Fault != nil {
		rec.Fault = res.Fault.Error()
		r.logger.Warn("tick fault", "seq", seq, "state", res.State, "band", res.Band, "command", rec.Command, "err", res.Fault)
	}
	if r.telemetry != nil {
		r.telemetry.Emit(rec)
	}
}
