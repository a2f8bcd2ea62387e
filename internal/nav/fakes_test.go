package nav

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"PicarNav/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeMotor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newFakeMotor() *fakeMotor { return &fakeMotor{fail: map[string]error{}} }

func (f *fakeMotor) record(op string, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if arg != "" {
		f.calls = append(f.calls, op+":"+arg)
	} else {
		f.calls = append(f.calls, op)
	}
	return f.fail[op]
}

func (f *fakeMotor) SetSpeed(v float64) error    { return f.record("speed", fmt.Sprintf("%g", v)) }
func (f *fakeMotor) SetSteering(v float64) error { return f.record("steer", fmt.Sprintf("%g", v)) }
func (f *fakeMotor) Stop() error                 { return f.record("stop", "") }
func (f *fakeMotor) EmergencyStop() error        { return f.record("estop", "") }

func (f *fakeMotor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeMotor) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// fakeRanger replays distances, repeating the last one.
type fakeRanger struct {
	values []float64
	err    error
}

func (f *fakeRanger) ReadDistance() (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	v := f.values[0]
	if len(f.values) > 1 {
		f.values = f.values[1:]
	}
	return v, nil
}

// fakeSensor replays readings, repeating the last one.
type fakeSensor struct {
	readings []model.LineReading
	err      error
	reads    int
}

func (f *fakeSensor) ReadLine() (model.LineReading, error) {
	f.reads++
	if f.err != nil {
		return model.LineReading{}, f.err
	}
	r := f.readings[0]
	if len(f.readings) > 1 {
		f.readings = f.readings[1:]
	}
	return r, nil
}

// fakeSleeper records requested durations without waiting.
type fakeSleeper struct {
	slept  []time.Duration
	during func()
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	if f.during != nil {
		f.during()
	}
	return ctx.Err()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func reading(l, c, r uint8) model.LineReading { return model.LineReading{l, c, r} }
