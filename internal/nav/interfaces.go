// Package nav is the navigation decision engine: it classifies the ground
// line sensor, arbitrates obstacle distance, recovers a lost line, reacts to
// traffic signs and sequences all of it through a state machine that issues
// one directive per control tick.
package nav

import (
	"context"
	"time"

	"PicarNav/internal/model"
)

// MotorController is the actuation boundary. Implementations clamp values
// and translate a speed/steering pair into wheel and servo primitives.
type MotorController interface {
	// SetSpeed drives at speed; negative values drive backward.
	SetSpeed(speed float64) error
	// SetSteering sets the steering angle in degrees.
	SetSteering(angle float64) error
	// Stop ramps down and centers the steering.
	Stop() error
	// EmergencyStop cuts the motors immediately.
	EmergencyStop() error
}

// RangeFinder reads the ultrasonic distance in centimeters.
type RangeFinder interface {
	ReadDistance() (float64, error)
}

// LineSensor reads the 3-channel ground sensor.
type LineSensor interface {
	ReadLine() (model.LineReading, error)
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
