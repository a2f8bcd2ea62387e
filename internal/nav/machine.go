package nav

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/anggasct/fluo"

	"PicarNav/internal/model"
)

// Stage is one arbitration step of a control tick.
type Stage int

const (
	StageNone        Stage = iota
	StageStopCommand       // operator stop, applied even during a settle hold
	StageObstacle
	StageCommand
	StageSign
	StageLine
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageStopCommand:
		return "stop_command"
	case StageObstacle:
		return "obstacle"
	case StageCommand:
		return "command"
	case StageSign:
		return "sign"
	case StageLine:
		return "line"
	default:
		return "unknown"
	}
}

// TickStages is the arbitration order. The first stage that issues a
// directive ends the tick.
var TickStages = []Stage{StageStopCommand, StageObstacle, StageCommand, StageSign, StageLine}

// TickInput is what the harness hands the machine each tick. Snapshot is
// nil when no fresh snapshot arrived; Command is nil when none was queued.
type TickInput struct {
	Snapshot *model.VisionSnapshot
	Command  *model.ExternalCommand
}

// TickResult describes what the machine did during one tick.
type TickResult struct {
	State     model.NavigationState
	Band      model.SafetyBand
	Distance  model.DistanceSample
	LineState model.LineState
	Directive model.Directive
	Stage     Stage
	Command   *model.ExternalCommand // command applied this tick
	Maneuver  *Maneuver
	Held      bool // tick fell inside an obstacle settle hold
	Fault     error
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithSleeper replaces the wall-clock sleeper used by maneuvers.
func WithSleeper(s Sleeper) Option {
	return func(m *Machine) { m.sleep = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// Machine sequences the navigation stages. Tick must be called from a
// single goroutine; State and Shutdown are safe from any goroutine.
type Machine struct {
	nav    model.NavigationConfig
	motor  MotorController
	ranger RangeFinder
	line   LineSensor

	arbiter  *Arbiter
	recovery *Recovery
	signs    *SignHandler

	now    func() time.Time
	sleep  Sleeper
	logger *slog.Logger

	chart fluo.Machine

	lastLine   model.LineState
	lastVision *model.LineDetection
	holdUntil  time.Time
	deferred   *model.ExternalCommand
}

// NewMachine assembles a Machine. ranger may be nil, in which case obstacle
// arbitration is skipped. line may be nil when the vision line source is
// configured.
func NewMachine(cfg model.Config, motor MotorController, ranger RangeFinder, line LineSensor, opts ...Option) *Machine {
	m := &Machine{
		nav:      cfg.Navigation,
		motor:    motor,
		ranger:   ranger,
		line:     line,
		arbiter:  NewArbiter(cfg.Obstacle),
		now:      time.Now,
		sleep:    Sleep,
		logger:   slog.Default(),
		lastLine: model.LineForward,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.chart = newChart(m.logger)
	m.recovery = NewRecovery(cfg.Recovery, motor, line, m.sleep, m.logger)
	m.signs = NewSignHandler(cfg.Signs, motor, m.sleep, m.logger)
	return m
}

// State returns the current navigation state.
func (m *Machine) State() model.NavigationState {
	return chartState(m.chart)
}

// fire sends event to the chart and reports whether a transition was taken.
// Events the current state has no transition for are dropped.
func (m *Machine) fire(event string, data any) bool {
	res := m.chart.HandleEvent(event, data)
	if !res.Success() {
		m.logger.Debug("state event ignored", "event", event, "state", res.CurrentState, "reason", res.RejectionReason)
		return false
	}
	return true
}

// Shutdown moves the machine to Stopped. It is terminal and idempotent.
func (m *Machine) Shutdown() {
	from := m.State()
	if m.fire(EventShutdown, nil) {
		m.logger.Info("navigation stopped", "from", from)
	}
}

// tick carries per-tick working state between stages.
type tick struct {
	in  TickInput
	cmd *model.ExternalCommand
	res TickResult
}

// Tick runs one control tick. The returned error is non-nil only for an
// ActuationFault, which the caller must treat as fatal; maneuver and
// sensor faults are resolved inside the tick and surface in
// TickResult.Fault.
func (m *Machine) Tick(ctx context.Context, in TickInput) (TickResult, error) {
	t := &tick{in: in, cmd: in.Command}
	t.res = TickResult{State: m.State(), Band: model.BandSafe, LineState: m.lastLine}

	if t.res.State == model.StateStopped || ctx.Err() != nil {
		return t.res, nil
	}

	if m.now().Before(m.holdUntil) {
		t.res.Held = true
		if t.cmd != nil && t.cmd.Kind != model.CommandStop {
			m.deferred = t.cmd
			t.cmd = nil
		}
		if t.cmd == nil {
			return t.res, nil
		}
	} else if t.cmd == nil && m.deferred != nil {
		t.cmd = m.deferred
	}
	if t.cmd != nil {
		m.deferred = nil
	}

	for _, stage := range TickStages {
		done, err := m.runStage(ctx, stage, t)
		if err != nil {
			t.res.Fault = err
			t.res.State = m.State()
			return t.res, err
		}
		if done {
			t.res.Stage = stage
			break
		}
	}
	t.res.State = m.State()
	return t.res, nil
}

func (m *Machine) runStage(ctx context.Context, stage Stage, t *tick) (bool, error) {
	switch stage {
	case StageStopCommand:
		if t.cmd == nil || t.cmd.Kind != model.CommandStop {
			return false, nil
		}
		t.res.Command = t.cmd
		t.cmd = nil
		return true, m.issue(ctx, t, model.Halt(model.SourceCommand))
	case StageObstacle:
		return m.obstacleStage(ctx, t)
	case StageCommand:
		return m.commandStage(ctx, t)
	case StageSign:
		return m.signStage(ctx, t)
	case StageLine:
		return m.lineStage(ctx, t)
	}
	return false, nil
}

func (m *Machine) obstacleStage(ctx context.Context, t *tick) (bool, error) {
	if m.ranger == nil {
		return false, nil
	}
	cm, err := m.ranger.ReadDistance()
	sample := m.arbiter.Sample(cm)
	if err != nil {
		m.logger.Debug("distance read failed", "err", err)
		sample = model.InvalidDistance()
	}
	band, d := m.arbiter.Evaluate(sample)
	t.res.Distance = sample
	t.res.Band = band
	if band == model.BandSafe {
		return false, nil
	}

	// Commands that only change state still apply; motion commands wait
	// until the settle hold ends.
	if t.cmd != nil {
		switch t.cmd.Kind {
		case model.CommandHold, model.CommandResume:
			m.applyStateCommand(t)
		default:
			m.deferred = t.cmd
			t.cmd = nil
		}
	}

	if err := m.issue(ctx, t, d); err != nil {
		return true, err
	}
	if d.Settle > 0 {
		m.holdUntil = m.now().Add(d.Settle)
	}
	return true, nil
}

func (m *Machine) applyStateCommand(t *tick) {
	switch t.cmd.Kind {
	case model.CommandHold:
		m.fire(EventHold, nil)
	case model.CommandResume:
		m.fire(EventResume, nil)
	}
	t.res.Command = t.cmd
	t.cmd = nil
}

func (m *Machine) commandStage(ctx context.Context, t *tick) (bool, error) {
	if t.cmd == nil {
		return false, nil
	}
	cmd := t.cmd
	switch cmd.Kind {
	case model.CommandSetSpeed:
		t.res.Command = cmd
		t.cmd = nil
		return true, m.issue(ctx, t, model.Directive{Kind: model.DirectiveSpeed, Speed: cmd.Value, Source: model.SourceCommand})
	case model.CommandSetSteering:
		t.res.Command = cmd
		t.cmd = nil
		return true, m.issue(ctx, t, model.Directive{Kind: model.DirectiveSteer, Steering: cmd.Value, Source: model.SourceCommand})
	case model.CommandHold:
		m.applyStateCommand(t)
		return true, m.issue(ctx, t, model.Halt(model.SourceCommand))
	case model.CommandResume:
		m.applyStateCommand(t)
		return false, nil
	default:
		m.logger.Warn("ignoring unknown command", "kind", cmd.Kind)
		t.cmd = nil
		return false, nil
	}
}

func (m *Machine) signStage(ctx context.Context, t *tick) (bool, error) {
	snap := t.in.Snapshot
	if snap == nil || !snap.HasSigns() {
		return false, nil
	}
	sign, ok := PrioritySign(snap.Signs())
	if !ok {
		return false, nil
	}
	// Only FollowingLine reacts to signs.
	if !m.fire(EventSign, sign) {
		return false, nil
	}

	man := m.signs.React(ctx, sign)
	t.res.Maneuver = &man
	t.res.Directive = man.Directive

	if man.Outcome == OutcomeFailed {
		t.res.Fault = man.Fault
		err := m.failSafe()
		m.fire(EventManeuverFailed, nil)
		return true, err
	}
	m.fire(EventManeuverDone, nil)
	return true, nil
}

func (m *Machine) lineStage(ctx context.Context, t *tick) (bool, error) {
	if m.State() != model.StateFollowingLine {
		return false, nil
	}
	if m.nav.LineSource == model.LineSourceVision {
		return true, m.issue(ctx, t, m.visionDirective(t.in.Snapshot))
	}
	if m.line == nil {
		return false, nil
	}

	reading, err := m.line.ReadLine()
	if err != nil {
		m.logger.Debug("line read failed", "err", err)
		return false, nil
	}
	state := Classify(reading)
	t.res.LineState = state

	var d model.Directive
	switch state {
	case model.LineForward:
		d = model.Drive(model.SourceLine, 0, m.nav.LineTrackSpeed)
	case model.LineLeft:
		d = model.Drive(model.SourceLine, m.nav.LineTrackAngleOffset, m.nav.LineTrackSpeed)
	case model.LineRight:
		d = model.Drive(model.SourceLine, -m.nav.LineTrackAngleOffset, m.nav.LineTrackSpeed)
	default:
		return true, m.recover(ctx, t)
	}
	m.lastLine = state
	return true, m.issue(ctx, t, d)
}

func (m *Machine) recover(ctx context.Context, t *tick) error {
	if d, ok := m.recovery.Directive(m.lastLine); ok {
		t.res.Directive = d
	}
	m.logger.Info("line lost, recovering", "last", m.lastLine)
	_, err := m.recovery.Recover(ctx, m.lastLine)
	if err == nil || ctx.Err() != nil {
		return nil
	}
	t.res.Fault = err
	m.logger.Error("line recovery failed", "err", err)
	return m.failSafe()
}

// visionDirective follows the camera line, falling back to the last
// detection when no fresh snapshot arrived.
func (m *Machine) visionDirective(snap *model.VisionSnapshot) model.Directive {
	if snap != nil {
		line := snap.Line()
		if line.Detected {
			m.lastVision = &line
		} else {
			if m.lastVision != nil {
				return model.Directive{Kind: model.DirectiveSpeed, Speed: m.nav.MinSpeed, Source: model.SourceVision}
			}
			return model.Halt(model.SourceVision)
		}
	}
	if m.lastVision == nil {
		return model.Halt(model.SourceVision)
	}

	half := float64(m.nav.FrameWidth) / 2
	offset := (float64(m.lastVision.X) - half) / half
	steering := -offset * m.nav.MaxSteering
	speed := math.Max(m.nav.BaseSpeed*(1-math.Abs(offset)), m.nav.MinSpeed)
	return model.Drive(model.SourceVision, steering, speed)
}

// issue applies d to the motor. A motor error triggers the emergency stop
// and is returned as an ActuationFault.
func (m *Machine) issue(ctx context.Context, t *tick, d model.Directive) error {
	if ctx.Err() != nil {
		return nil
	}
	t.res.Directive = d

	var err error
	op := d.Kind.String()
	switch d.Kind {
	case model.DirectiveDrive:
		if err = m.motor.SetSteering(d.Steering); err == nil {
			err = m.motor.SetSpeed(d.Speed)
		}
	case model.DirectiveSpeed:
		err = m.motor.SetSpeed(d.Speed)
	case model.DirectiveSteer:
		err = m.motor.SetSteering(d.Steering)
	case model.DirectiveStop:
		err = m.motor.Stop()
	}
	if err == nil {
		return nil
	}
	m.logger.Error("actuation failed, emergency stop", "directive", d.String(), "err", err)
	if eerr := m.motor.EmergencyStop(); eerr != nil {
		err = errors.Join(err, eerr)
	}
	return &ActuationFault{Op: op, Err: err}
}

// failSafe is the unconditional stop issued after a maneuver fault.
func (m *Machine) failSafe() error {
	err := m.motor.Stop()
	if err == nil {
		return nil
	}
	m.logger.Error("fail-safe stop failed, emergency stop", "err", err)
	if eerr := m.motor.EmergencyStop(); eerr != nil {
		err = errors.Join(err, eerr)
	}
	return &ActuationFault{Op: "stop", Err: err}
}
