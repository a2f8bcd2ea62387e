package nav

import (
	"errors"
	"fmt"
)

// ErrRecoveryTimeout is returned when the line is not reacquired within
// recovery.timeout.
var ErrRecoveryTimeout = errors.New("line recovery timed out")

// ManeuverFault reports a failed sign reaction or recovery step. The
// machine answers it with an unconditional stop.
type ManeuverFault struct {
	Maneuver string
	Err      error
}

func (f *ManeuverFault) Error() string {
	return fmt.Sprintf("maneuver %s failed: %v", f.Maneuver, f.Err)
}

func (f *ManeuverFault) Unwrap() error { return f.Err }

// ActuationFault reports that the motor controller itself failed. The
// emergency stop has already been attempted when it is returned.
type ActuationFault struct {
	Op  string
	Err error
}

func (f *ActuationFault) Error() string {
	return fmt.Sprintf("actuation %s failed: %v", f.Op, f.Err)
}

func (f *ActuationFault) Unwrap() error { return f.Err }

// IsActuationFault reports whether err carries an ActuationFault.
func IsActuationFault(err error) bool {
	var af *ActuationFault
	return errors.As(err, &af)
}
