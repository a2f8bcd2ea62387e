package device

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PicarNav/internal/model"
	"PicarNav/internal/parser"
)

func newSimRig(t *testing.T) (*SimBoard, *Board) {
	t.Helper()
	sim := NewSimBoard(1)
	sim.SetDrift(0)
	board := NewBoard(sim, 100*time.Millisecond)
	t.Cleanup(func() { _ = board.Close() })
	return sim, board
}

func TestBoardCommands(t *testing.T) {
	sim, board := newSimRig(t)

	require.NoError(t, board.SetWheels(30, -30))
	l, r := sim.Wheels()
	assert.Equal(t, 30, l)
	assert.Equal(t, -30, r)

	require.NoError(t, board.SetServo(-12.5))
	assert.Equal(t, -12.5, sim.Servo())

	require.NoError(t, board.EmergencyStop())
	assert.Equal(t, 1, sim.EmergencyStops())
	l, r = sim.Wheels()
	assert.Zero(t, l)
	assert.Zero(t, r)
}

func TestBoardErrorReply(t *testing.T) {
	sim, board := newSimRig(t)
	sim.Fail("S", "servo fault")

	err := board.SetServo(10)
	var be *parser.BoardError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "servo fault", be.Message)

	sim.Fail("S", "")
	assert.NoError(t, board.SetServo(10))
}

func TestUltrasonic(t *testing.T) {
	sim, board := newSimRig(t)
	sim.SetDistance(func(int) float64 { return 23.456 })

	cm, err := NewUltrasonic(board).ReadDistance()
	require.NoError(t, err)
	assert.Equal(t, 23.46, cm)
}

func TestGrayscale(t *testing.T) {
	sim, board := newSimRig(t)
	g := NewGrayscale(board, [3]int{1000, 1000, 1000})

	tests := []struct {
		offset float64
		want   model.LineReading
	}{
		{0, model.LineReading{0, 1, 0}},
		{-1, model.LineReading{1, 0, 0}},
		{1, model.LineReading{0, 0, 1}},
		{3, model.LineReading{0, 0, 0}},
	}
	for _, tt := range tests {
		sim.SetLineOffset(tt.offset)
		got, err := g.ReadLine()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "offset %v", tt.offset)
	}
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, model.LineReading{1, 0, 1}, Threshold([3]int{1000, 1001, 10}, [3]int{1000, 1000, 1000}))
}

// scriptedDevice returns queued results in order.
type scriptedDevice struct {
	written []string
	reads   []readResult
}

func (d *scriptedDevice) WriteLine(s string) error {
	d.written = append(d.written, s)
	return nil
}

func (d *scriptedDevice) ReadLine(time.Duration) (string, error) {
	if len(d.reads) == 0 {
		return "", ErrReadTimeout
	}
	r := d.reads[0]
	d.reads = d.reads[1:]
	return r.line, r.err
}

func (d *scriptedDevice) Close() error { return nil }

func TestBoardDropsLateReply(t *testing.T) {
	dev := &scriptedDevice{reads: []readResult{
		{err: ErrReadTimeout},
		{line: "OK\n"},
		{line: "D,12.00\n"},
	}}
	board := NewBoard(dev, 10*time.Millisecond)

	err := board.SetServo(5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadTimeout))

	cm, err := board.Distance()
	require.NoError(t, err)
	assert.Equal(t, 12.0, cm)
	assert.Equal(t, []string{"S,5.0", "D?"}, dev.written)
}

func TestWheelPower(t *testing.T) {
	tests := []struct {
		speed, steer float64
		left, right  int
	}{
		{40, 0, 40, -40},
		{40, 30, 40, -28},
		{40, -30, 28, -40},
		{-10, 30, -10, 7},
		{0, 30, 0, 0},
	}
	for _, tt := range tests {
		l, r := WheelPower(tt.speed, tt.steer)
		assert.Equal(t, tt.left, l, "speed %v steer %v", tt.speed, tt.steer)
		assert.Equal(t, tt.right, r, "speed %v steer %v", tt.speed, tt.steer)
	}
}

func newTestMotor(t *testing.T) (*SimBoard, *Motor) {
	sim, board := newSimRig(t)
	cfg := model.DefaultConfig().Motor
	cfg.RampStep = 0
	return sim, NewMotor(board, cfg, nil)
}

func TestMotorClampsAndSteers(t *testing.T) {
	sim, m := newTestMotor(t)

	require.NoError(t, m.SetSpeed(80))
	l, r := sim.Wheels()
	assert.Equal(t, 50, l)
	assert.Equal(t, -50, r)

	require.NoError(t, m.SetSteering(45))
	assert.Equal(t, 30.0, sim.Servo())
	l, r = sim.Wheels()
	assert.Equal(t, 50, l)
	assert.Equal(t, -35, r)

	speed, steer := m.State()
	assert.Equal(t, 50.0, speed)
	assert.Equal(t, 30.0, steer)
}

func TestMotorStopRampsDown(t *testing.T) {
	sim, m := newTestMotor(t)
	var slept int
	m.sleep = func(time.Duration) { slept++ }

	require.NoError(t, m.SetSpeed(40))
	require.NoError(t, m.SetSteering(-20))
	require.NoError(t, m.Stop())

	l, r := sim.Wheels()
	assert.Zero(t, l)
	assert.Zero(t, r)
	assert.Zero(t, sim.Servo())
	assert.Equal(t, 10, slept)
	speed, steer := m.State()
	assert.Zero(t, speed)
	assert.Zero(t, steer)
	assert.Zero(t, sim.EmergencyStops())
}

func TestMotorStopFallsBackToEmergency(t *testing.T) {
	sim, m := newTestMotor(t)
	require.NoError(t, m.SetSpeed(30))

	sim.Fail("M", "driver fault")
	require.NoError(t, m.Stop())
	assert.Equal(t, 1, sim.EmergencyStops())

	sim.Fail("X", "bus down")
	assert.Error(t, m.Stop())
}

func TestServeBridgesSimulator(t *testing.T) {
	sim := NewSimBoard(1)
	port := &scriptedDevice{reads: []readResult{
		{line: "M,20,-20\n"},
		{err: ErrReadTimeout},
		{line: "\n"},
		{line: "D?\n"},
		{err: errors.New("pty hung up")},
	}}

	err := Serve(context.Background(), port, sim)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pty hung up")
	require.Len(t, port.written, 2)
	assert.Equal(t, "OK", port.written[0])
	assert.True(t, strings.HasPrefix(port.written[1], "D,"), port.written[1])
	l, r := sim.Wheels()
	assert.Equal(t, 20, l)
	assert.Equal(t, -20, r)
}
