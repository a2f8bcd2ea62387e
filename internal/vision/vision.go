// Package vision provides the camera and detector boundaries of the vision
// producer, a scripted source for simulation and image-based line and sign
// detectors.
package vision

import (
	"context"
	"image"
	"time"

	"PicarNav/internal/model"
)

// Frame is one captured image. Scripted sources attach Annotations instead
// of (or in addition to) pixels.
type Frame struct {
	Seq         uint64
	Captured    time.Time
	Image       image.Image
	Annotations *Annotations
}

// Annotations are precomputed detection results carried by a frame.
type Annotations struct {
	Line  model.LineDetection   `yaml:"line"`
	Signs []model.SignDetection `yaml:"signs"`
}

// Camera captures frames. A nil frame with a nil error means no frame was
// available this time.
type Camera interface {
	Capture(ctx context.Context) (*Frame, error)
}

// LineDetector locates the line in a frame.
type LineDetector interface {
	Detect(f *Frame) model.LineDetection
}

// SignDetector finds traffic signs in a frame.
type SignDetector interface {
	DetectSigns(f *Frame) []model.SignDetection
}

// Annotated returns frame annotations when present and otherwise delegates
// to the wrapped detectors, which may be nil.
type Annotated struct {
	Line  LineDetector
	Signs SignDetector
}

// Detect implements LineDetector.
func (a Annotated) Detect(f *Frame) model.LineDetection {
	if f == nil {
		return model.LineDetection{}
	}
	if f.Annotations != nil {
		return f.Annotations.Line
	}
	if a.Line == nil || f.Image == nil {
		return model.LineDetection{}
	}
	return a.Line.Detect(f)
}

// DetectSigns implements SignDetector.
func (a Annotated) DetectSigns(f *Frame) []model.SignDetection {
	if f == nil {
		return nil
	}
	if f.Annotations != nil {
		return f.Annotations.Signs
	}
	if a.Signs == nil || f.Image == nil {
		return nil
	}
	return a.Signs.DetectSigns(f)
}
