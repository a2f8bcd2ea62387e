package nav

import (
	"context"
	"fmt"
	"log/slog"

	"PicarNav/internal/model"
)

// Outcome is how a sign maneuver ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Maneuver is the result of one sign reaction.
type Maneuver struct {
	Sign      model.SignDetection
	Directive model.Directive // first directive issued
	Outcome   Outcome
	Fault     error
}

// signRank orders sign classes; lower ranks win.
func signRank(c model.SignClass) int {
	switch c {
	case model.SignStop:
		return 0
	case model.SignTurnLeft, model.SignTurnRight:
		return 1
	default:
		return 2
	}
}

// PrioritySign picks the sign to react to: Stop beats turns, and among
// equal ranks the first detection wins.
func PrioritySign(signs []model.SignDetection) (model.SignDetection, bool) {
	best := -1
	for i, s := range signs {
		if signRank(s.Class) > 1 {
			continue
		}
		if best < 0 || signRank(s.Class) < signRank(signs[best].Class) {
			best = i
		}
	}
	if best < 0 {
		return model.SignDetection{}, false
	}
	return signs[best], true
}

// SignHandler runs the timed stop and turn reactions.
type SignHandler struct {
	cfg    model.SignConfig
	motor  MotorController
	sleep  Sleeper
	logger *slog.Logger
}

// NewSignHandler creates a SignHandler. A nil sleeper uses Sleep.
func NewSignHandler(cfg model.SignConfig, motor MotorController, sleep Sleeper, logger *slog.Logger) *SignHandler {
	if sleep == nil {
		sleep = Sleep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SignHandler{cfg: cfg, motor: motor, sleep: sleep, logger: logger}
}

// React executes the maneuver for sign. Motor errors are reported as a
// ManeuverFault in the result, cancellation as OutcomeCancelled.
func (h *SignHandler) React(ctx context.Context, sign model.SignDetection) Maneuver {
	m := Maneuver{Sign: sign}
	h.logger.Info("sign detected", "class", sign.Class, "confidence", sign.Confidence)
	if ctx.Err() != nil {
		m.Outcome = OutcomeCancelled
		return m
	}

	switch sign.Class {
	case model.SignStop:
		m.Directive = model.Halt(model.SourceSign)
		if err := h.motor.Stop(); err != nil {
			return h.fail(m, err)
		}
		if err := h.sleep(ctx, h.cfg.StopDwell); err != nil {
			m.Outcome = OutcomeCancelled
			return m
		}
	case model.SignTurnLeft, model.SignTurnRight:
		angle := h.cfg.TurnAngle
		if sign.Class == model.SignTurnLeft {
			angle = -angle
		}
		m.Directive = model.Drive(model.SourceSign, angle, h.cfg.TurnSpeed)
		if err := h.motor.SetSpeed(h.cfg.TurnSpeed); err != nil {
			return h.fail(m, err)
		}
		if err := h.motor.SetSteering(angle); err != nil {
			return h.fail(m, err)
		}
		if err := h.sleep(ctx, h.cfg.TurnDuration); err != nil {
			m.Outcome = OutcomeCancelled
			return m
		}
		if err := h.motor.SetSteering(0); err != nil {
			return h.fail(m, err)
		}
	default:
		return h.fail(m, fmt.Errorf("unsupported sign class %v", sign.Class))
	}

	m.Outcome = OutcomeCompleted
	return m
}

func (h *SignHandler) fail(m Maneuver, err error) Maneuver {
	m.Outcome = OutcomeFailed
	m.Fault = &ManeuverFault{Maneuver: m.Sign.Class.String(), Err: err}
	h.logger.Error("sign maneuver failed", "class", m.Sign.Class, "err", err)
	return m
}
