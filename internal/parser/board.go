package parser

// Board wire format (host <-> robot HAT microcontroller), one line each way:
//
//	M,<left>,<right>   set wheel power (-100..100), reply OK
//	S,<angle>          set steering servo angle in degrees, reply OK
//	X                  cut all motor power immediately, reply OK
//	D?                 query ultrasonic distance, reply D,<cm>
//	G?                 query grayscale ADC channels, reply G,<a0>,<a1>,<a2>
//	E,<message>        error reply to any request

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Board requests.
const (
	BoardEmergency      = "X"
	BoardDistanceQuery  = "D?"
	BoardGrayscaleQuery = "G?"
	BoardAck            = "OK"
)

// BoardError is an E,<message> reply.
type BoardError struct {
	Message string
}

func (e *BoardError) Error() string { return "board error: " + e.Message }

// WheelsToCSV encodes a wheel power request.
func WheelsToCSV(left, right int) string {
	return fmt.Sprintf("M,%d,%d", left, right)
}

// ServoToCSV encodes a steering servo request.
func ServoToCSV(angle float64) string {
	return fmt.Sprintf("S,%.1f", angle)
}

// ParseBoardReply splits a reply into its tag and fields, converting E
// replies into a BoardError.
func ParseBoardReply(line string) (string, []string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, errors.New("empty board reply")
	}
	fields := strings.Split(line, ",")
	if fields[0] == "E" {
		return "", nil, &BoardError{Message: strings.Join(fields[1:], ",")}
	}
	return fields[0], fields[1:], nil
}

// ParseAck checks for an OK reply.
func ParseAck(line string) error {
	tag, _, err := ParseBoardReply(line)
	if err != nil {
		return err
	}
	if tag != BoardAck {
		return fmt.Errorf("unexpected board reply %q", strings.TrimSpace(line))
	}
	return nil
}

// ParseDistance decodes D,<cm>.
func ParseDistance(line string) (float64, error) {
	tag, fields, err := ParseBoardReply(line)
	if err != nil {
		return 0, err
	}
	if tag != "D" || len(fields) != 1 {
		return 0, fmt.Errorf("unexpected distance reply %q", strings.TrimSpace(line))
	}
	cm, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, errors.New("invalid distance")
	}
	return cm, nil
}

// ParseGrayscale decodes G,<a0>,<a1>,<a2>.
func ParseGrayscale(line string) ([3]int, error) {
	var out [3]int
	tag, fields, err := ParseBoardReply(line)
	if err != nil {
		return out, err
	}
	if tag != "G" || len(fields) != 3 {
		return out, fmt.Errorf("unexpected grayscale reply %q", strings.TrimSpace(line))
	}
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return out, fmt.Errorf("invalid grayscale channel %d", i)
		}
		out[i] = v
	}
	return out, nil
}
