// Package parser implements the CSVParser which handles encoding and decoding
// of telemetry and operator commands using comma-separated values format.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"PicarNav/internal/model"
)

// CSVParser implements Parser interface using CSV format.
// Example telemetry CSV: 42,following_line,safe,87.5,forward,0.0,10.0,
type CSVParser struct{}

// NewCSVParser creates a new CSV parser instance.
func NewCSVParser() *CSVParser { return &CSVParser{} }

// EncodeTelemetry converts Telemetry into a compact CSV line.
func (p *CSVParser) EncodeTelemetry(t model.Telemetry) (string, error) {
	fault := strings.NewReplacer(",", ";", "\n", " ").Replace(t.Fault)
	return fmt.Sprintf("%d,%s,%s,%.1f,%s,%.1f,%.1f,%s",
		t.Seq, t.State, t.Band, t.Distance, t.LineState,
		t.Directive.Steering, t.Directive.Speed, fault), nil
}

// DecodeTelemetry parses a CSV telemetry line. State, band and line state
// are looked up by name.
func (p *CSVParser) DecodeTelemetry(line string) (model.Telemetry, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 8 {
		return model.Telemetry{}, fmt.Errorf("expected 8 fields, got %d", len(fields))
	}

	seq, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return model.Telemetry{}, errors.New("invalid seq")
	}
	var state model.NavigationState
	if err := state.UnmarshalText([]byte(fields[1])); err != nil {
		return model.Telemetry{}, errors.New("invalid state")
	}
	var band model.SafetyBand
	if err := band.UnmarshalText([]byte(fields[2])); err != nil {
		return model.Telemetry{}, errors.New("invalid band")
	}
	dist, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return model.Telemetry{}, errors.New("invalid distance")
	}
	var lineState model.LineState
	if err := lineState.UnmarshalText([]byte(fields[4])); err != nil {
		return model.Telemetry{}, errors.New("invalid line state")
	}
	steer, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return model.Telemetry{}, errors.New("invalid steering")
	}
	speed, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return model.Telemetry{}, errors.New("invalid speed")
	}

	return model.Telemetry{
		Seq:       seq,
		State:     state,
		Band:      band,
		Distance:  dist,
		LineState: lineState,
		Directive: model.Directive{Kind: model.DirectiveDrive, Steering: steer, Speed: speed},
		Fault:     fields[7],
	}, nil
}

// EncodeCommand converts a command into TYPE[,VALUE].
func (p *CSVParser) EncodeCommand(c model.ExternalCommand) (string, error) {
	if c.Kind.HasValue() {
		return fmt.Sprintf("%s,%g", c.Kind, c.Value), nil
	}
	return string(c.Kind), nil
}

// DecodeCommand parses TYPE[,VALUE].
func (p *CSVParser) DecodeCommand(line string) (model.ExternalCommand, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) > 2 || fields[0] == "" {
		return model.ExternalCommand{}, fmt.Errorf("malformed command %q", line)
	}
	c := model.ExternalCommand{Kind: model.CommandKind(fields[0])}
	if len(fields) == 2 {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return model.ExternalCommand{}, errors.New("invalid command value")
		}
		c.Value = v
	}
	c, err := validateCommand(c)
	if err != nil {
		return model.ExternalCommand{}, err
	}
	if c.Kind.HasValue() && len(fields) != 2 {
		return model.ExternalCommand{}, fmt.Errorf("command %s requires a value", c.Kind)
	}
	return c, nil
}
