// Package parser implements the JSONParser which encodes and decodes
// telemetry and operator commands in JSON format.
package parser

import (
	"encoding/json"
	"fmt"

	"PicarNav/internal/model"
)

// JSONParser implements Parser interface using JSON serialization.
type JSONParser struct{}

// NewJSONParser creates a new JSON parser.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// EncodeTelemetry encodes Telemetry into JSON string.
func (p *JSONParser) EncodeTelemetry(t model.Telemetry) (string, error) {
	b, err := json.Marshal(t)
	return string(b), err
}

// DecodeTelemetry decodes JSON string into Telemetry.
func (p *JSONParser) DecodeTelemetry(s string) (model.Telemetry, error) {
	var t model.Telemetry
	err := json.Unmarshal([]byte(s), &t)
	return t, err
}

// EncodeCommand encodes an ExternalCommand into JSON string.
func (p *JSONParser) EncodeCommand(c model.ExternalCommand) (string, error) {
	b, err := json.Marshal(c)
	return string(b), err
}

// DecodeCommand decodes a JSON command. Speed and turn commands must carry
// a value.
func (p *JSONParser) DecodeCommand(s string) (model.ExternalCommand, error) {
	var raw struct {
		ID     string   `json:"id"`
		Type   string   `json:"type"`
		Value  *float64 `json:"value"`
		Origin string   `json:"origin"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return model.ExternalCommand{}, fmt.Errorf("decode command: %w", err)
	}
	c := model.ExternalCommand{ID: raw.ID, Kind: model.CommandKind(raw.Type), Origin: raw.Origin}
	if raw.Value != nil {
		c.Value = *raw.Value
	}
	c, err := validateCommand(c)
	if err != nil {
		return model.ExternalCommand{}, err
	}
	if c.Kind.HasValue() && raw.Value == nil {
		return model.ExternalCommand{}, fmt.Errorf("command %s requires a value", c.Kind)
	}
	return c, nil
}
