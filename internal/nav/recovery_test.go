package nav

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PicarNav/internal/model"
)

func TestRecoveryBacksAwayFromLastSide(t *testing.T) {
	cfg := model.DefaultConfig().Recovery
	tests := []struct {
		last  model.LineState
		steer string
	}{
		{model.LineLeft, "steer:-30"},
		{model.LineRight, "steer:30"},
	}
	for _, tt := range tests {
		t.Run(tt.last.String(), func(t *testing.T) {
			motor := newFakeMotor()
			sensor := &fakeSensor{readings: []model.LineReading{reading(0, 0, 0), reading(0, 0, 0), reading(0, 1, 0)}}
			sleeper := &fakeSleeper{}
			r := NewRecovery(cfg, motor, sensor, sleeper.Sleep, discard)

			state, err := r.Recover(context.Background(), tt.last)
			require.NoError(t, err)
			assert.Equal(t, model.LineForward, state)
			assert.Equal(t, []string{tt.steer, "speed:-10"}, motor.Calls())
			assert.Equal(t, []time.Duration{cfg.PollInterval, cfg.PollInterval}, sleeper.slept)
		})
	}
}

func TestRecoveryWithoutSideOnlyPolls(t *testing.T) {
	motor := newFakeMotor()
	sensor := &fakeSensor{readings: []model.LineReading{reading(0, 0, 0), reading(1, 0, 0)}}
	sleeper := &fakeSleeper{}
	r := NewRecovery(model.DefaultConfig().Recovery, motor, sensor, sleeper.Sleep, discard)

	state, err := r.Recover(context.Background(), model.LineForward)
	require.NoError(t, err)
	assert.Equal(t, model.LineRight, state)
	assert.Empty(t, motor.Calls())
}

func TestRecoveryToleratesSensorErrors(t *testing.T) {
	sensor := &fakeSensor{err: errors.New("i2c nack")}
	sleeper := &fakeSleeper{}
	sleeper.during = func() {
		if len(sleeper.slept) == 3 {
			sensor.err = nil
			sensor.readings = []model.LineReading{reading(0, 0, 1)}
		}
	}
	r := NewRecovery(model.DefaultConfig().Recovery, newFakeMotor(), sensor, sleeper.Sleep, discard)

	state, err := r.Recover(context.Background(), model.LineLeft)
	require.NoError(t, err)
	assert.Equal(t, model.LineLeft, state)
	assert.Equal(t, 4, sensor.reads)
}

func TestRecoveryTimeout(t *testing.T) {
	cfg := model.DefaultConfig().Recovery
	cfg.PollInterval = time.Millisecond
	cfg.Timeout = 20 * time.Millisecond
	sensor := &fakeSensor{readings: []model.LineReading{reading(0, 0, 0)}}
	r := NewRecovery(cfg, newFakeMotor(), sensor, Sleep, discard)

	_, err := r.Recover(context.Background(), model.LineRight)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecoveryTimeout)
	var mf *ManeuverFault
	assert.ErrorAs(t, err, &mf)
}

func TestRecoveryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sensor := &fakeSensor{readings: []model.LineReading{reading(0, 0, 0)}}
	sleeper := &fakeSleeper{during: cancel}
	r := NewRecovery(model.DefaultConfig().Recovery, newFakeMotor(), sensor, sleeper.Sleep, discard)

	_, err := r.Recover(ctx, model.LineLeft)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sleeper.slept, 1)
}

func TestRecoveryMotorFault(t *testing.T) {
	motor := newFakeMotor()
	motor.fail["steer"] = errors.New("servo stalled")
	r := NewRecovery(model.DefaultConfig().Recovery, motor, &fakeSensor{readings: []model.LineReading{reading(0, 1, 0)}}, (&fakeSleeper{}).Sleep, discard)

	_, err := r.Recover(context.Background(), model.LineLeft)
	var mf *ManeuverFault
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "recovery", mf.Maneuver)
}

func TestRecoveryAfterShutdownIssuesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	motor := newFakeMotor()
	sensor := &fakeSensor{readings: []model.LineReading{reading(0, 1, 0)}}
	r := NewRecovery(model.DefaultConfig().Recovery, motor, sensor, (&fakeSleeper{}).Sleep, discard)

	state, err := r.Recover(ctx, model.LineLeft)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.LineLost, state)
	assert.Empty(t, motor.Calls())
	assert.Zero(t, sensor.reads)
}
