// Package operator accepts operator commands from the websocket console and
// the MQTT bridge, and streams tick telemetry back to them.
package operator

import (
	"bytes"
	"errors"
	"time"

	"github.com/google/uuid"

	"PicarNav/internal/model"
	"PicarNav/internal/parser"
)

// ErrQueueFull is returned when the navigation loop has not drained the
// pending commands yet.
var ErrQueueFull = errors.New("command queue full")

// Queue is the bounded command channel read by the control loop. It is
// never closed.
type Queue struct {
	ch  chan model.ExternalCommand
	now func() time.Time
}

// NewQueue creates a queue holding up to size commands.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan model.ExternalCommand, size), now: time.Now}
}

// C returns the receive side for the control loop.
func (q *Queue) C() <-chan model.ExternalCommand { return q.ch }

// Submit stamps cmd with an ID, origin and issue time and enqueues it
// without blocking.
func (q *Queue) Submit(cmd model.ExternalCommand, origin string) (model.ExternalCommand, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.Origin == "" {
		cmd.Origin = origin
	}
	if cmd.IssuedAt.IsZero() {
		cmd.IssuedAt = q.now().UTC()
	}
	select {
	case q.ch <- cmd:
		return cmd, nil
	default:
		return cmd, ErrQueueFull
	}
}

var (
	jsonCodec = parser.NewJSONParser()
	csvCodec  = parser.NewCSVParser()
)

// DecodeCommand accepts a JSON object or the CSV form TYPE[,VALUE].
func DecodeCommand(payload []byte) (model.ExternalCommand, error) {
	p := bytes.TrimSpace(payload)
	if len(p) == 0 {
		return model.ExternalCommand{}, errors.New("empty command")
	}
	if p[0] == '{' {
		return jsonCodec.DecodeCommand(string(p))
	}
	return csvCodec.DecodeCommand(string(p))
}
