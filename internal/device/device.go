// Package device defines a unified interface for line-based serial devices
// and the drivers built on it: the robot HAT board link, the motor
// controller, the ultrasonic and grayscale sensors, and an in-memory board
// simulator.
package device

import (
	"errors"
	"time"
)

// ErrReadTimeout is returned by ReadLine when no line arrived in time.
var ErrReadTimeout = errors.New("read timeout")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("device closed")

// Device defines an abstract interface for communication devices (e.g., the
// robot HAT serial link or a LoRa modem).
type Device interface {
	// ReadLine reads a single line terminated by '\n'.
	// If timeout > 0, it must return after timeout even if no data available.
	ReadLine(timeout time.Duration) (string, error)

	// WriteLine writes s followed by '\n' to the device.
	WriteLine(s string) error

	// Close closes the device and releases underlying resources.
	Close() error
}
