package device

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"PicarNav/internal/model"
)

// Motor drives the two rear wheels and the steering servo. It keeps the
// current speed/steering pair so that steering changes rescale the wheel
// power for the turn. The right wheel is mounted mirrored, so its power is
// inverted.
type Motor struct {
	mu       sync.Mutex
	board    *Board
	cfg      model.MotorConfig
	logger   *slog.Logger
	sleep    func(time.Duration)
	speed    float64
	steering float64
}

// NewMotor creates a Motor. A nil logger uses slog.Default().
func NewMotor(board *Board, cfg model.MotorConfig, logger *slog.Logger) *Motor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Motor{board: board, cfg: cfg, logger: logger, sleep: time.Sleep}
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// WheelPower returns the left and right wheel power for a speed/steering
// pair. The inner wheel is slowed by (100-|angle|)/100.
func WheelPower(speed, steering float64) (int, int) {
	left, right := speed, -speed
	scale := (100 - math.Abs(steering)) / 100
	switch {
	case steering > 0:
		right *= scale
	case steering < 0:
		left *= scale
	}
	return int(math.Round(left)), int(math.Round(right))
}

func (m *Motor) drive() error {
	left, right := WheelPower(m.speed, m.steering)
	return m.board.SetWheels(left, right)
}

// SetSpeed clamps speed to ±max_speed and applies it.
func (m *Motor) SetSpeed(speed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speed = clamp(speed, m.cfg.MaxSpeed)
	return m.drive()
}

// SetSteering clamps angle to ±max_steering, moves the servo and rescales
// the wheels when moving.
func (m *Motor) SetSteering(angle float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	angle = clamp(angle, m.cfg.MaxSteering)
	if err := m.board.SetServo(angle); err != nil {
		return err
	}
	m.steering = angle
	if m.speed == 0 {
		return nil
	}
	return m.drive()
}

// Stop ramps the speed down geometrically, then cuts the wheels and centers
// the steering. If any step fails it falls back to EmergencyStop and only
// reports an error when that fails too.
func (m *Motor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.rampDown()
	if err == nil {
		return nil
	}
	m.logger.Warn("graceful stop failed, emergency stop", "err", err)
	if eerr := m.emergencyStop(); eerr != nil {
		return errors.Join(err, eerr)
	}
	return nil
}

func (m *Motor) rampDown() error {
	for math.Abs(m.speed) > m.cfg.RampFloor {
		m.speed *= m.cfg.RampFactor
		if err := m.drive(); err != nil {
			return err
		}
		m.sleep(m.cfg.RampStep)
	}
	if err := m.board.SetWheels(0, 0); err != nil {
		return err
	}
	m.speed = 0
	if err := m.board.SetServo(0); err != nil {
		return err
	}
	m.steering = 0
	return nil
}

// EmergencyStop cuts the motors immediately.
func (m *Motor) EmergencyStop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergencyStop()
}

func (m *Motor) emergencyStop() error {
	if err := m.board.EmergencyStop(); err != nil {
		m.logger.Error("emergency stop failed", "err", err)
		return err
	}
	m.speed = 0
	m.steering = 0
	m.logger.Warn("emergency stop")
	return nil
}

// State returns the current speed and steering.
func (m *Motor) State() (speed, steering float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed, m.steering
}
