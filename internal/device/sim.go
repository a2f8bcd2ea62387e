package device

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"PicarNav/internal/parser"
)

// Simulated grayscale ADC levels.
const (
	simOnLine  = 200
	simOffLine = 1500
)

// SimBoard is an in-memory Device that answers the board protocol from a
// simple track model: the line drifts under the sensor bar as the robot
// steers, and an obstacle approaches and recedes periodically.
type SimBoard struct {
	mu      sync.Mutex
	replies chan string
	closed  bool
	rng     *rand.Rand

	left, right int
	servo       float64
	estops      int

	lineOffset float64 // line position relative to the center sensor, in sensor spacings
	drift      float64
	step       int
	distance   func(step int) float64
	failures   map[string]string
}

// NewSimBoard creates a SimBoard seeded for reproducible runs.
func NewSimBoard(seed int64) *SimBoard {
	return &SimBoard{
		replies:  make(chan string, 16),
		rng:      rand.New(rand.NewSource(seed)),
		drift:    0.05,
		distance: PeriodicObstacle,
		failures: map[string]string{},
	}
}

// PeriodicObstacle sweeps between 10cm and 110cm.
func PeriodicObstacle(step int) float64 {
	return 60 + 50*math.Sin(float64(step)/40)
}

// SetDistance replaces the obstacle profile.
func (s *SimBoard) SetDistance(f func(step int) float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distance = f
}

// SetLineOffset places the line; 0 is under the center sensor, -1 under the
// left sensor and +1 under the right one.
func (s *SimBoard) SetLineOffset(offset float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lineOffset = offset
}

// SetDrift sets the random line drift per grayscale query.
func (s *SimBoard) SetDrift(d float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drift = d
}

// Fail makes requests starting with prefix answer E,<msg>. An empty msg
// clears the failure.
func (s *SimBoard) Fail(prefix, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg == "" {
		delete(s.failures, prefix)
		return
	}
	s.failures[prefix] = msg
}

// Wheels returns the last wheel power set.
func (s *SimBoard) Wheels() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left, s.right
}

// Servo returns the last steering angle set.
func (s *SimBoard) Servo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servo
}

// EmergencyStops counts X requests.
func (s *SimBoard) EmergencyStops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estops
}

// WriteLine handles one request and queues its reply.
func (s *SimBoard) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	reply := s.handle(strings.TrimSpace(line))
	select {
	case s.replies <- reply:
		return nil
	default:
		return fmt.Errorf("sim board reply queue full")
	}
}

// ReadLine returns the next queued reply.
func (s *SimBoard) ReadLine(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		line, ok := <-s.replies
		if !ok {
			return "", ErrClosed
		}
		return line + "\n", nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case line, ok := <-s.replies:
		if !ok {
			return "", ErrClosed
		}
		return line + "\n", nil
	case <-t.C:
		return "", ErrReadTimeout
	}
}

// Close stops the board; pending reads return ErrClosed.
func (s *SimBoard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.replies)
	}
	return nil
}

// Serve answers board requests arriving on port from sim until ctx is
// done or either side fails. It lets the simulator sit behind a real
// serial link such as one end of a virtual PTY pair.
func Serve(ctx context.Context, port, sim Device) error {
	for ctx.Err() == nil {
		req, err := port.ReadLine(100 * time.Millisecond)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		if err := sim.WriteLine(req); err != nil {
			return err
		}
		reply, err := sim.ReadLine(time.Second)
		if err != nil {
			return err
		}
		if err := port.WriteLine(strings.TrimSpace(reply)); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
	return nil
}

func (s *SimBoard) handle(req string) string {
	for prefix, msg := range s.failures {
		if strings.HasPrefix(req, prefix) {
			return "E," + msg
		}
	}
	fields := strings.Split(req, ",")
	switch fields[0] {
	case "M":
		if len(fields) != 3 {
			return "E,bad wheel request"
		}
		l, err1 := strconv.Atoi(fields[1])
		r, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil {
			return "E,bad wheel power"
		}
		s.left, s.right = l, r
		return parser.BoardAck
	case "S":
		if len(fields) != 2 {
			return "E,bad servo request"
		}
		a, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return "E,bad servo angle"
		}
		s.servo = a
		return parser.BoardAck
	case parser.BoardEmergency:
		s.left, s.right = 0, 0
		s.estops++
		return parser.BoardAck
	case parser.BoardDistanceQuery:
		s.step++
		return fmt.Sprintf("D,%.2f", s.distance(s.step))
	case parser.BoardGrayscaleQuery:
		s.advance()
		return fmt.Sprintf("G,%d,%d,%d", s.channel(-1), s.channel(0), s.channel(1))
	default:
		return "E,unknown request " + req
	}
}

// advance moves the line under the sensor bar. Steering right while moving
// forward shifts the line toward the left sensor.
func (s *SimBoard) advance() {
	speed := float64(s.left-s.right) / 2
	s.lineOffset -= s.servo / 30 * speed / 100
	s.lineOffset += (s.rng.Float64()*2 - 1) * s.drift
	s.lineOffset = clamp(s.lineOffset, 3)
}

func (s *SimBoard) channel(pos float64) int {
	if math.Abs(s.lineOffset-pos) < 0.5 {
		return simOnLine
	}
	return simOffLine
}
