// Package model defines the shared data types of the navigation core:
// sensor readings, derived states, directives, vision snapshots, operator
// commands and the configuration tree loaded from configs/config.yml.
package model

import (
	"fmt"
	"time"
)

// LineReading is one sample of the 3-channel ground sensor, ordered
// left, center, right. Each element is 0 (no line) or 1 (line under sensor).
type LineReading [3]uint8

// Left reports whether the left sensor sees the line.
func (r LineReading) Left() bool { return r[0] == 1 }

// Center reports whether the center sensor sees the line.
func (r LineReading) Center() bool { return r[1] == 1 }

// Right reports whether the right sensor sees the line.
func (r LineReading) Right() bool { return r[2] == 1 }

// Valid reports whether every element is 0 or 1.
func (r LineReading) Valid() bool {
	for _, v := range r {
		if v > 1 {
			return false
		}
	}
	return true
}

func (r LineReading) String() string {
	return fmt.Sprintf("[%d,%d,%d]", r[0], r[1], r[2])
}

// LineState is the correction direction derived from a LineReading.
//
// LineLeft and LineRight name the direction to steer, not the sensor that
// fired: a left-sensor hit yields LineRight and a right-sensor hit yields
// LineLeft.
type LineState int

const (
	LineForward LineState = iota
	LineLeft
	LineRight
	LineLost
)

func (s LineState) String() string {
	switch s {
	case LineForward:
		return "forward"
	case LineLeft:
		return "left"
	case LineRight:
		return "right"
	case LineLost:
		return "lost"
	default:
		return fmt.Sprintf("LineState(%d)", int(s))
	}
}

// MarshalText encodes the state by name for JSON and YAML output.
func (s LineState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *LineState) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, s, LineForward, LineLeft, LineRight, LineLost)
}

// DistanceSample is one ultrasonic measurement in centimeters. A sample
// built with InvalidDistance carries no usable value.
type DistanceSample struct {
	CM    float64
	Valid bool
}

// Distance builds a valid sample.
func Distance(cm float64) DistanceSample { return DistanceSample{CM: cm, Valid: true} }

// InvalidDistance builds the Invalid marker.
func InvalidDistance() DistanceSample { return DistanceSample{} }

func (d DistanceSample) String() string {
	if !d.Valid {
		return "invalid"
	}
	return fmt.Sprintf("%.2fcm", d.CM)
}

// SafetyBand classifies obstacle proximity.
type SafetyBand int

const (
	BandSafe SafetyBand = iota
	BandCaution
	BandDanger
)

func (b SafetyBand) String() string {
	switch b {
	case BandSafe:
		return "safe"
	case BandCaution:
		return "caution"
	case BandDanger:
		return "danger"
	default:
		return fmt.Sprintf("SafetyBand(%d)", int(b))
	}
}

// MarshalText encodes the band by name.
func (b SafetyBand) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText decodes a band name.
func (b *SafetyBand) UnmarshalText(text []byte) error {
	return unmarshalEnum(text, b, BandSafe, BandCaution, BandDanger)
}

// NavigationState is the top-level mode of the state machine.
type NavigationState int

const (
	StateFollowingLine NavigationState = iota
	StateHandlingSign
	StateAwaitingCommand
	StateStopped
)

func (s NavigationState) String() string {
	switch s {
	case StateFollowingLine:
		return "following_line"
	case StateHandlingSign:
		return "handling_sign"
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("NavigationState(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s NavigationState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *NavigationState) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, s, StateFollowingLine, StateHandlingSign, StateAwaitingCommand, StateStopped)
}

// DirectiveKind selects which actuator calls a Directive turns into.
type DirectiveKind int

const (
	DirectiveNone  DirectiveKind = iota
	DirectiveDrive               // steering then speed
	DirectiveSpeed               // speed only
	DirectiveSteer               // steering only
	DirectiveStop                // graceful stop
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveNone:
		return "none"
	case DirectiveDrive:
		return "drive"
	case DirectiveSpeed:
		return "speed"
	case DirectiveSteer:
		return "steer"
	case DirectiveStop:
		return "stop"
	default:
		return fmt.Sprintf("DirectiveKind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k DirectiveKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name.
func (k *DirectiveKind) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, k, DirectiveNone, DirectiveDrive, DirectiveSpeed, DirectiveSteer, DirectiveStop)
}

// unmarshalEnum sets *dst to the value whose name matches text.
func unmarshalEnum[T fmt.Stringer](text []byte, dst *T, values ...T) error {
	name := string(text)
	for _, v := range values {
		if v.String() == name {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("unknown %T %q", *dst, name)
}

// DirectiveSource records which part of the engine produced a directive.
type DirectiveSource string

const (
	SourceObstacle DirectiveSource = "obstacle"
	SourceLine     DirectiveSource = "line"
	SourceVision   DirectiveSource = "vision"
	SourceRecovery DirectiveSource = "recovery"
	SourceSign     DirectiveSource = "sign"
	SourceCommand  DirectiveSource = "command"
)

// Directive is the steering/speed decision for one control tick.
// Speed is signed: negative values drive backward.
type Directive struct {
	Kind     DirectiveKind   `json:"kind"`
	Steering float64         `json:"steering"`
	Speed    float64         `json:"speed"`
	Settle   time.Duration   `json:"settle,omitempty"`
	Source   DirectiveSource `json:"source"`
}

// Drive builds a steering+speed directive.
func Drive(source DirectiveSource, steering, speed float64) Directive {
	return Directive{Kind: DirectiveDrive, Steering: steering, Speed: speed, Source: source}
}

// Halt builds a graceful stop directive.
func Halt(source DirectiveSource) Directive {
	return Directive{Kind: DirectiveStop, Source: source}
}

func (d Directive) String() string {
	switch d.Kind {
	case DirectiveDrive:
		return fmt.Sprintf("%s drive steer=%+.1f speed=%+.1f", d.Source, d.Steering, d.Speed)
	case DirectiveSpeed:
		return fmt.Sprintf("%s speed=%+.1f", d.Source, d.Speed)
	case DirectiveSteer:
		return fmt.Sprintf("%s steer=%+.1f", d.Source, d.Steering)
	case DirectiveStop:
		return fmt.Sprintf("%s stop", d.Source)
	default:
		return "none"
	}
}
