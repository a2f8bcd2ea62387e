package vision

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Step is one entry of a vision script: the annotations are served for
// Repeat consecutive frames (at least one).
type Step struct {
	Annotations `yaml:",inline"`
	Repeat      int `yaml:"repeat"`
}

// Scripted is a Camera that replays annotated frames.
type Scripted struct {
	mu    sync.Mutex
	steps []Step
	loop  bool
	idx   int
	count int
	seq   uint64
	now   func() time.Time
}

// NewScripted creates a Scripted camera. With loop set it restarts after
// the last step; otherwise it stops producing frames.
func NewScripted(steps []Step, loop bool) *Scripted {
	return &Scripted{steps: steps, loop: loop, now: time.Now}
}

// LoadScript reads steps from a YAML file:
//
//	# drive straight for 30 frames, then see a stop sign
//	- line: {detected: true, x: 320, y: 400}
//	  repeat: 30
//	- signs: [{class: stop, confidence: 0.9}]
func LoadScript(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var steps []Step
	if err := yaml.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("parse vision script %s: %w", path, err)
	}
	return steps, nil
}

// Capture returns the next scripted frame, or nil once the script is done.
func (s *Scripted) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idx >= len(s.steps) {
		if !s.loop || len(s.steps) == 0 {
			return nil, nil
		}
		s.idx = 0
	}
	step := s.steps[s.idx]
	s.count++
	if s.count >= max(step.Repeat, 1) {
		s.idx++
		s.count = 0
	}

	s.seq++
	ann := step.Annotations
	ann.Signs = append(ann.Signs[:0:0], step.Signs...)
	return &Frame{Seq: s.seq, Captured: s.now(), Annotations: &ann}, nil
}
