package core

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"PicarNav/internal/model"
)

// Sink receives tick telemetry.
type Sink interface {
	Name() string
	Publish(t model.Telemetry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	ID string
	Fn func(model.Telemetry) error
}

// Name implements Sink.
func (s SinkFunc) Name() string { return s.ID }

// Publish implements Sink.
func (s SinkFunc) Publish(t model.Telemetry) error { return s.Fn(t) }

// Telemetry is a bounded fan-out hub. Emit never blocks the control loop:
// records are dropped when the buffer is full.
type Telemetry struct {
	ch      chan model.Telemetry
	sinks   []Sink
	logger  *slog.Logger
	dropped atomic.Uint64
	failed  atomic.Uint64

	stop     chan struct{}
	wg       sync.WaitGroup
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewTelemetry creates a hub with the given buffer size.
func NewTelemetry(buffer int, logger *slog.Logger, sinks ...Sink) *Telemetry {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Telemetry{
		ch:     make(chan model.Telemetry, buffer),
		sinks:  sinks,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Add registers a sink. It must be called before Start.
func (t *Telemetry) Add(s Sink) {
	t.startMu.Lock()
	defer t.startMu.Unlock()
	if t.started {
		t.logger.Warn("telemetry sink added after start, ignored", "sink", s.Name())
		return
	}
	t.sinks = append(t.sinks, s)
}

// Start launches the dispatch goroutine.
func (t *Telemetry) Start() {
	t.startMu.Lock()
	defer t.startMu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.wg.Add(1)
	go t.loop()
}

// Emit queues rec for the sinks and reports whether it was accepted.
func (t *Telemetry) Emit(rec model.Telemetry) bool {
	select {
	case <-t.stop:
		return false
	default:
	}
	select {
	case t.ch <- rec:
		return true
	default:
		t.dropped.Add(1)
		return false
	}
}

// Dropped counts records rejected because the buffer was full.
func (t *Telemetry) Dropped() uint64 { return t.dropped.Load() }

// Failed counts sink publish errors.
func (t *Telemetry) Failed() uint64 { return t.failed.Load() }

func (t *Telemetry) loop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stop:
			// flush what is already queued
			for {
				select {
				case rec := <-t.ch:
					t.dispatch(rec)
				default:
					return
				}
			}
		case rec := <-t.ch:
			t.dispatch(rec)
		}
	}
}

func (t *Telemetry) dispatch(rec model.Telemetry) {
	for _, s := range t.sinks {
		if err := s.Publish(rec); err != nil {
			t.failed.Add(1)
			t.logger.Debug("telemetry sink failed", "sink", s.Name(), "seq", rec.Seq, "err", err)
		}
	}
}

// Stop flushes queued records and waits for the dispatcher. It is
// idempotent.
func (t *Telemetry) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.wg.Wait()
}
