package nav

import "PicarNav/internal/model"

// Ground sensor channel indexes.
const (
	ChannelLeft   = 0
	ChannelCenter = 1
	ChannelRight  = 2
)

// SensorPriority is the order in which channels are consulted: the first
// active channel decides the state.
var SensorPriority = [3]int{ChannelCenter, ChannelLeft, ChannelRight}

// channelCorrection is the state produced by each active channel. A line
// under the left sensor means the robot drifted left of it, so the
// correction is to steer right, and vice versa.
var channelCorrection = [3]model.LineState{
	ChannelLeft:   model.LineRight,
	ChannelCenter: model.LineForward,
	ChannelRight:  model.LineLeft,
}

// Classify maps a ground sensor reading to a LineState. It is total over
// all readings; no active channel yields LineLost.
func Classify(r model.LineReading) model.LineState {
	for _, ch := range SensorPriority {
		if r[ch] == 1 {
			return channelCorrection[ch]
		}
	}
	return model.LineLost
}
