package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SignClass is the kind of traffic sign recognized by the vision pipeline.
type SignClass int

const (
	SignStop SignClass = iota + 1
	SignTurnLeft
	SignTurnRight
)

func (c SignClass) String() string {
	switch c {
	case SignStop:
		return "stop"
	case SignTurnLeft:
		return "turn_left"
	case SignTurnRight:
		return "turn_right"
	default:
		return fmt.Sprintf("SignClass(%d)", int(c))
	}
}

// MarshalText encodes the class by name.
func (c SignClass) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText accepts the class name, case-insensitive.
func (c *SignClass) UnmarshalText(b []byte) error {
	parsed, err := ParseSignClass(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseSignClass converts a class name into a SignClass.
func ParseSignClass(value string) (SignClass, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "stop":
		return SignStop, nil
	case "turn_left", "left":
		return SignTurnLeft, nil
	case "turn_right", "right":
		return SignTurnRight, nil
	default:
		return 0, fmt.Errorf("unknown sign class %q", value)
	}
}

// SignClassFromColor maps the colour of a detected blob to a sign class.
// Colour-threshold detectors report red, blue or yellow regions.
func SignClassFromColor(color string) (SignClass, bool) {
	switch strings.ToLower(color) {
	case "red":
		return SignStop, true
	case "blue":
		return SignTurnLeft, true
	case "yellow":
		return SignTurnRight, true
	default:
		return 0, false
	}
}

// SignDetection is one sign found in a frame. Position is the bounding box
// center in pixels, Width/Height its size.
type SignDetection struct {
	Class      SignClass `json:"class" yaml:"class"`
	X          int       `json:"x" yaml:"x"`
	Y          int       `json:"y" yaml:"y"`
	Width      int       `json:"width" yaml:"width"`
	Height     int       `json:"height" yaml:"height"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
}

// LineDetection is the camera-derived line result for one frame.
type LineDetection struct {
	Detected   bool    `json:"detected" yaml:"detected"`
	X          int     `json:"x" yaml:"x"`
	Y          int     `json:"y" yaml:"y"`
	Angle      float64 `json:"angle" yaml:"angle"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// VisionSnapshot bundles the vision results for one frame. Values are only
// built through NewVisionSnapshot and expose read-only accessors.
type VisionSnapshot struct {
	id        string
	seq       uint64
	line      LineDetection
	signs     []SignDetection
	timestamp time.Time
}

// NewVisionSnapshot builds a snapshot; signs is copied.
func NewVisionSnapshot(seq uint64, line LineDetection, signs []SignDetection, ts time.Time) VisionSnapshot {
	var own []SignDetection
	if len(signs) > 0 {
		own = make([]SignDetection, len(signs))
		copy(own, signs)
	}
	return VisionSnapshot{
		id:        uuid.NewString(),
		seq:       seq,
		line:      line,
		signs:     own,
		timestamp: ts,
	}
}

// ID is a unique identifier of the snapshot.
func (s VisionSnapshot) ID() string { return s.id }

// Seq is the producer sequence number.
func (s VisionSnapshot) Seq() uint64 { return s.seq }

// Line returns the line detection result.
func (s VisionSnapshot) Line() LineDetection { return s.line }

// Timestamp is the capture time.
func (s VisionSnapshot) Timestamp() time.Time { return s.timestamp }

// HasSigns reports whether at least one sign was detected.
func (s VisionSnapshot) HasSigns() bool { return len(s.signs) > 0 }

// Signs returns a copy of the detected signs in detection order.
func (s VisionSnapshot) Signs() []SignDetection {
	if len(s.signs) == 0 {
		return nil
	}
	out := make([]SignDetection, len(s.signs))
	copy(out, s.signs)
	return out
}
