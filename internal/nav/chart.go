package nav

import (
	"log/slog"

	"github.com/anggasct/fluo"

	"PicarNav/internal/model"
)

// Navigation chart events.
const (
	EventSign           = "sign"
	EventManeuverDone   = "maneuver_done"
	EventManeuverFailed = "maneuver_failed"
	EventHold           = "hold"
	EventResume         = "resume"
	EventShutdown       = "shutdown"
)

var (
	chartFollowingLine   = model.StateFollowingLine.String()
	chartHandlingSign    = model.StateHandlingSign.String()
	chartAwaitingCommand = model.StateAwaitingCommand.String()
	chartStopped         = model.StateStopped.String()
)

// navigationChart is the transition table shared by every Machine. Stopped
// is final: no event leaves it.
var navigationChart = fluo.NewMachine().
	State(chartFollowingLine).Initial().
	To(chartHandlingSign).On(EventSign).When(carriesSign).
	To(chartAwaitingCommand).On(EventHold).
	To(chartStopped).On(EventShutdown).
	State(chartHandlingSign).
	To(chartFollowingLine).On(EventManeuverDone).
	To(chartFollowingLine).On(EventManeuverFailed).
	To(chartStopped).On(EventShutdown).
	State(chartAwaitingCommand).
	To(chartFollowingLine).On(EventResume).
	To(chartStopped).On(EventShutdown).
	State(chartStopped).Final().
	Build()

// carriesSign admits a sign event only when it names the detection being
// reacted to.
func carriesSign(c fluo.Context) bool {
	_, ok := c.GetEventData().(model.SignDetection)
	return ok
}

// newChart starts a chart instance in FollowingLine.
func newChart(logger *slog.Logger) fluo.Machine {
	chart := navigationChart.CreateInstance()
	chart.AddObserver(&chartLogger{logger: logger})
	_ = chart.Start()
	return chart
}

// chartState maps the chart's current state name back to the model enum.
func chartState(chart fluo.Machine) model.NavigationState {
	var s model.NavigationState
	if err := s.UnmarshalText([]byte(chart.CurrentState())); err != nil {
		return model.StateStopped
	}
	return s
}

type chartLogger struct {
	fluo.BaseObserver
	logger *slog.Logger
}

func (l *chartLogger) OnTransition(from, to string, event fluo.Event, _ fluo.Context) {
	name := ""
	if event != nil {
		name = event.GetName()
	}
	l.logger.Debug("state transition", "from", from, "to", to, "event", name)
}
