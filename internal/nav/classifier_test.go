package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"PicarNav/internal/model"
)

func TestClassifyAllReadings(t *testing.T) {
	tests := []struct {
		in   model.LineReading
		want model.LineState
	}{
		{reading(0, 0, 0), model.LineLost},
		{reading(0, 1, 0), model.LineForward},
		{reading(1, 0, 0), model.LineRight},
		{reading(0, 0, 1), model.LineLeft},
		{reading(1, 1, 0), model.LineForward},
		{reading(0, 1, 1), model.LineForward},
		{reading(1, 1, 1), model.LineForward},
		{reading(1, 0, 1), model.LineRight},
	}
	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestClassifyIgnoresOutOfRangeChannels(t *testing.T) {
	assert.Equal(t, model.LineLost, Classify(reading(2, 255, 7)))
	assert.Equal(t, model.LineLeft, Classify(reading(3, 0, 1)))
}

func TestSensorPriorityOrder(t *testing.T) {
	assert.Equal(t, [3]int{ChannelCenter, ChannelLeft, ChannelRight}, SensorPriority)
}
