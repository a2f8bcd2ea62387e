package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"PicarNav/internal/model"
)

func TestChartTransitions(t *testing.T) {
	sign := model.SignDetection{Class: model.SignStop}
	tests := []struct {
		name   string
		events []string
		data   any
		want   model.NavigationState
	}{
		{"initial", nil, nil, model.StateFollowingLine},
		{"sign", []string{EventSign}, sign, model.StateHandlingSign},
		{"sign without detection", []string{EventSign}, nil, model.StateFollowingLine},
		{"maneuver done", []string{EventSign, EventManeuverDone}, sign, model.StateFollowingLine},
		{"maneuver failed", []string{EventSign, EventManeuverFailed}, sign, model.StateFollowingLine},
		{"hold", []string{EventHold}, nil, model.StateAwaitingCommand},
		{"hold ignores signs", []string{EventHold, EventSign}, sign, model.StateAwaitingCommand},
		{"resume", []string{EventHold, EventResume}, nil, model.StateFollowingLine},
		{"resume while following", []string{EventResume}, nil, model.StateFollowingLine},
		{"hold while handling sign", []string{EventSign, EventHold}, sign, model.StateHandlingSign},
		{"shutdown from following", []string{EventShutdown}, nil, model.StateStopped},
		{"shutdown from sign", []string{EventSign, EventShutdown}, sign, model.StateStopped},
		{"shutdown from hold", []string{EventHold, EventShutdown}, nil, model.StateStopped},
		{"stopped is final", []string{EventShutdown, EventResume, EventSign, EventManeuverDone}, sign, model.StateStopped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chart := newChart(discard)
			for _, ev := range tt.events {
				chart.HandleEvent(ev, tt.data)
			}
			assert.Equal(t, tt.want, chartState(chart))
		})
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	m := NewMachine(model.DefaultConfig(), newFakeMotor(), nil, nil, WithLogger(discard))
	m.Shutdown()
	assert.Equal(t, model.StateStopped, m.State())
	assert.False(t, m.fire(EventShutdown, nil))
	m.Shutdown()
	assert.Equal(t, model.StateStopped, m.State())
}
