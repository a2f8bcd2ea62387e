package model

import (
	"fmt"
	"strings"
	"time"
)

// CommandKind is the type of an operator command.
type CommandKind string

const (
	CommandSetSpeed    CommandKind = "speed"
	CommandSetSteering CommandKind = "turn"
	CommandStop        CommandKind = "stop"
	CommandHold        CommandKind = "hold"
	CommandResume      CommandKind = "resume"
)

// ParseCommandKind normalizes a command name. "steering" is accepted as an
// alias of "turn".
func ParseCommandKind(value string) (CommandKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "speed":
		return CommandSetSpeed, nil
	case "turn", "steering":
		return CommandSetSteering, nil
	case "stop":
		return CommandStop, nil
	case "hold":
		return CommandHold, nil
	case "resume":
		return CommandResume, nil
	default:
		return "", fmt.Errorf("unknown command %q", value)
	}
}

// HasValue reports whether the kind carries a numeric value.
func (k CommandKind) HasValue() bool {
	return k == CommandSetSpeed || k == CommandSetSteering
}

// ExternalCommand is an operator instruction consumed by the navigation loop.
type ExternalCommand struct {
	ID       string      `json:"id,omitempty"`
	Kind     CommandKind `json:"type"`
	Value    float64     `json:"value,omitempty"`
	Origin   string      `json:"origin,omitempty"`
	IssuedAt time.Time   `json:"issued_at,omitempty"`
}

func (c ExternalCommand) String() string {
	if c.Kind.HasValue() {
		return fmt.Sprintf("%s(%.1f)", c.Kind, c.Value)
	}
	return string(c.Kind)
}

// SetSpeed builds a speed command.
func SetSpeed(v float64) ExternalCommand { return ExternalCommand{Kind: CommandSetSpeed, Value: v} }

// SetSteering builds a steering command.
func SetSteering(v float64) ExternalCommand {
	return ExternalCommand{Kind: CommandSetSteering, Value: v}
}

// Stop builds a stop command.
func Stop() ExternalCommand { return ExternalCommand{Kind: CommandStop} }

// Telemetry is the record emitted for every control tick.
type Telemetry struct {
	RunID     string          `json:"run_id"`
	Seq       uint64          `json:"seq"`
	Time      time.Time       `json:"time"`
	State     NavigationState `json:"state"`
	Band      SafetyBand      `json:"band"`
	Distance  float64         `json:"distance"`
	LineState LineState       `json:"line_state"`
	Snapshot  uint64          `json:"snapshot,omitempty"`
	Directive Directive       `json:"directive"`
	Command   string          `json:"command,omitempty"`
	Fault     string          `json:"fault,omitempty"`
}
