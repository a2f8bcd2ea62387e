package nav

import (
	"PicarNav/internal/model"
)

// Arbiter maps ultrasonic distance to a safety band and the avoidance
// directive for that band.
type Arbiter struct {
	cfg model.ObstacleConfig
}

// NewArbiter creates an Arbiter with the given thresholds.
func NewArbiter(cfg model.ObstacleConfig) *Arbiter {
	return &Arbiter{cfg: cfg}
}

// Sample converts a raw reading into a DistanceSample. Negative values and
// values above the sanity ceiling are Invalid.
func (a *Arbiter) Sample(cm float64) model.DistanceSample {
	if cm < 0 || cm > a.cfg.SanityCeiling {
		return model.InvalidDistance()
	}
	return model.Distance(cm)
}

// Band classifies a sample. Invalid samples follow the configured policy:
// fail_open resolves them to Safe so a sensor glitch never freezes the
// robot, fail_closed resolves them to Danger.
func (a *Arbiter) Band(s model.DistanceSample) model.SafetyBand {
	if !s.Valid || s.CM < 0 || s.CM > a.cfg.SanityCeiling {
		if a.cfg.InvalidPolicy == model.FailClosed {
			return model.BandDanger
		}
		return model.BandSafe
	}
	switch {
	case s.CM >= a.cfg.SafeDistance:
		return model.BandSafe
	case s.CM >= a.cfg.DangerDistance:
		return model.BandCaution
	default:
		return model.BandDanger
	}
}

// Evaluate returns the band and its directive. Caution veers forward,
// Danger backs away; both carry a settle time during which the caller must
// not evaluate again.
func (a *Arbiter) Evaluate(s model.DistanceSample) (model.SafetyBand, model.Directive) {
	band := a.Band(s)
	switch band {
	case model.BandCaution:
		d := model.Drive(model.SourceObstacle, a.cfg.CautionAngle, a.cfg.AvoidSpeed)
		d.Settle = a.cfg.CautionSettle
		return band, d
	case model.BandDanger:
		d := model.Drive(model.SourceObstacle, a.cfg.DangerAngle, -a.cfg.AvoidSpeed)
		d.Settle = a.cfg.DangerSettle
		return band, d
	default:
		return model.BandSafe, model.Drive(model.SourceObstacle, 0, a.cfg.AvoidSpeed)
	}
}
