package device

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"PicarNav/internal/model"
	"PicarNav/internal/parser"
)

// Board speaks the request/response protocol of the robot HAT
// microcontroller over a Device. Requests are serialized.
type Board struct {
	mu      sync.Mutex
	dev     Device
	timeout time.Duration
	stale   bool
}

// NewBoard wraps dev. timeout bounds each reply.
func NewBoard(dev Device, timeout time.Duration) *Board {
	return &Board{dev: dev, timeout: timeout}
}

// OpenBoard opens the serial link described by cfg.
func OpenBoard(cfg model.BoardConfig) (*Board, error) {
	dev, err := NewSerialDevice(cfg.Device, cfg.Baud)
	if err != nil {
		return nil, fmt.Errorf("open board: %w", err)
	}
	return NewBoard(dev, cfg.Timeout), nil
}

func (b *Board) request(req string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A reply that arrived after its request timed out would answer this
	// request instead; drop it first.
	if b.stale {
		_, _ = b.dev.ReadLine(b.timeout / 4)
		b.stale = false
	}

	if err := b.dev.WriteLine(req); err != nil {
		return "", fmt.Errorf("board write %q: %w", req, err)
	}
	line, err := b.dev.ReadLine(b.timeout)
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			b.stale = true
		}
		return "", fmt.Errorf("board read for %q: %w", req, err)
	}
	return strings.TrimSpace(line), nil
}

func (b *Board) command(req string) error {
	reply, err := b.request(req)
	if err != nil {
		return err
	}
	return parser.ParseAck(reply)
}

// SetWheels sets left and right wheel power.
func (b *Board) SetWheels(left, right int) error {
	return b.command(parser.WheelsToCSV(left, right))
}

// SetServo sets the steering servo angle.
func (b *Board) SetServo(angle float64) error {
	return b.command(parser.ServoToCSV(angle))
}

// EmergencyStop cuts motor power.
func (b *Board) EmergencyStop() error {
	return b.command(parser.BoardEmergency)
}

// Distance queries the ultrasonic sensor.
func (b *Board) Distance() (float64, error) {
	reply, err := b.request(parser.BoardDistanceQuery)
	if err != nil {
		return 0, err
	}
	return parser.ParseDistance(reply)
}

// Grayscale queries the three ground sensor channels.
func (b *Board) Grayscale() ([3]int, error) {
	reply, err := b.request(parser.BoardGrayscaleQuery)
	if err != nil {
		return [3]int{}, err
	}
	return parser.ParseGrayscale(reply)
}

// Close closes the underlying device.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev.Close()
}
