package device

import (
	"math"

	"PicarNav/internal/model"
)

// Ultrasonic reads the front distance sensor through the board.
type Ultrasonic struct {
	board *Board
}

// NewUltrasonic creates an Ultrasonic.
func NewUltrasonic(board *Board) *Ultrasonic { return &Ultrasonic{board: board} }

// ReadDistance returns the distance in centimeters, rounded to 0.01.
// Range checking is left to the caller.
func (u *Ultrasonic) ReadDistance() (float64, error) {
	cm, err := u.board.Distance()
	if err != nil {
		return 0, err
	}
	return math.Round(cm*100) / 100, nil
}

// Grayscale reads the 3-channel ground sensor through the board.
type Grayscale struct {
	board     *Board
	reference [3]int
}

// NewGrayscale creates a Grayscale. A channel sees the line when its ADC
// value is at or below its reference.
func NewGrayscale(board *Board, reference [3]int) *Grayscale {
	return &Grayscale{board: board, reference: reference}
}

// ReadLine returns the binary line reading.
func (g *Grayscale) ReadLine() (model.LineReading, error) {
	raw, err := g.board.Grayscale()
	if err != nil {
		return model.LineReading{}, err
	}
	return Threshold(raw, g.reference), nil
}

// Threshold converts raw ADC values into a LineReading.
func Threshold(raw, reference [3]int) model.LineReading {
	var r model.LineReading
	for i := range raw {
		if raw[i] <= reference[i] {
			r[i] = 1
		}
	}
	return r
}
