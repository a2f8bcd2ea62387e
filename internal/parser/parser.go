// Package parser converts the text wire formats used by the robot to
// structured types and vice-versa.
//
// Operator command wire formats:
//
//	CSV:  TYPE[,VALUE]                 e.g. speed,25 or stop
//	JSON: {"type":"turn","value":-12}
//
// Telemetry CSV (LoRa uplink payload):
//
//	SEQ,STATE,BAND,DIST,LINE,STEER,SPEED,FAULT
package parser

import (
	"fmt"
	"math"

	"PicarNav/internal/model"
)

// Parser encodes and decodes operator commands and tick telemetry.
type Parser interface {
	EncodeTelemetry(t model.Telemetry) (string, error)
	DecodeTelemetry(s string) (model.Telemetry, error)
	EncodeCommand(c model.ExternalCommand) (string, error)
	DecodeCommand(s string) (model.ExternalCommand, error)
}

// New returns the parser for format: "csv" or "json".
func New(format string) (Parser, error) {
	switch format {
	case "csv":
		return NewCSVParser(), nil
	case "json", "":
		return NewJSONParser(), nil
	default:
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
}

func validateCommand(c model.ExternalCommand) (model.ExternalCommand, error) {
	kind, err := model.ParseCommandKind(string(c.Kind))
	if err != nil {
		return model.ExternalCommand{}, err
	}
	c.Kind = kind
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return model.ExternalCommand{}, fmt.Errorf("command %s: value is not finite", kind)
	}
	if !kind.HasValue() {
		c.Value = 0
	}
	return c, nil
}
