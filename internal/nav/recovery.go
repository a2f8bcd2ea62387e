package nav

import (
	"context"
	"errors"
	"log/slog"

	"PicarNav/internal/model"
)

// Recovery backs away from the side the line was last seen on and polls
// the ground sensor until any channel sees it again.
type Recovery struct {
	cfg    model.RecoveryConfig
	motor  MotorController
	sensor LineSensor
	sleep  Sleeper
	logger *slog.Logger
}

// NewRecovery creates a Recovery. A nil sleeper uses Sleep.
func NewRecovery(cfg model.RecoveryConfig, motor MotorController, sensor LineSensor, sleep Sleeper, logger *slog.Logger) *Recovery {
	if sleep == nil {
		sleep = Sleep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{cfg: cfg, motor: motor, sensor: sensor, sleep: sleep, logger: logger}
}

// Directive is the backing maneuver used for a given last known state.
// A last state other than Left or Right issues no maneuver.
func (r *Recovery) Directive(last model.LineState) (model.Directive, bool) {
	switch last {
	case model.LineLeft:
		return model.Drive(model.SourceRecovery, -r.cfg.SteerAngle, -r.cfg.ReverseSpeed), true
	case model.LineRight:
		return model.Drive(model.SourceRecovery, r.cfg.SteerAngle, -r.cfg.ReverseSpeed), true
	default:
		return model.Directive{}, false
	}
}

// Recover runs the recovery procedure and returns the reacquired state.
// It returns ctx.Err() on shutdown, ErrRecoveryTimeout when the configured
// timeout elapses and a ManeuverFault when the motor rejects the maneuver.
func (r *Recovery) Recover(ctx context.Context, last model.LineState) (model.LineState, error) {
	if err := ctx.Err(); err != nil {
		return model.LineLost, err
	}
	if d, ok := r.Directive(last); ok {
		if err := r.motor.SetSteering(d.Steering); err != nil {
			return model.LineLost, &ManeuverFault{Maneuver: "recovery", Err: err}
		}
		if err := r.motor.SetSpeed(d.Speed); err != nil {
			return model.LineLost, &ManeuverFault{Maneuver: "recovery", Err: err}
		}
	}

	pollCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	for {
		reading, err := r.sensor.ReadLine()
		if err != nil {
			r.logger.Debug("recovery: line read failed", "err", err)
		} else if state := Classify(reading); state != model.LineLost {
			r.logger.Info("recovery: line reacquired", "state", state, "reading", reading)
			return state, nil
		}

		if err := r.sleep(pollCtx, r.cfg.PollInterval); err != nil {
			if ctx.Err() != nil {
				return model.LineLost, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return model.LineLost, &ManeuverFault{Maneuver: "recovery", Err: ErrRecoveryTimeout}
			}
			return model.LineLost, err
		}
	}
}
