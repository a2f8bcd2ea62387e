package nav

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"PicarNav/internal/model"
)

func TestArbiterBands(t *testing.T) {
	a := NewArbiter(model.DefaultConfig().Obstacle)
	tests := []struct {
		cm   float64
		want model.SafetyBand
	}{
		{1000, model.BandSafe},
		{100, model.BandSafe},
		{40, model.BandSafe},
		{39.99, model.BandCaution},
		{20, model.BandCaution},
		{19.99, model.BandDanger},
		{0, model.BandDanger},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.cm), func(t *testing.T) {
			band, _ := a.Evaluate(a.Sample(tt.cm))
			assert.Equal(t, tt.want, band)
		})
	}
}

func TestArbiterInvalidPolicy(t *testing.T) {
	cfg := model.DefaultConfig().Obstacle
	open := NewArbiter(cfg)
	cfg.InvalidPolicy = model.FailClosed
	closed := NewArbiter(cfg)

	for _, cm := range []float64{-1, 1000.5, 5000} {
		s := open.Sample(cm)
		assert.False(t, s.Valid, "%v should be invalid", cm)
		assert.Equal(t, model.BandSafe, open.Band(s))
		assert.Equal(t, model.BandDanger, closed.Band(s))
	}
	assert.Equal(t, model.BandSafe, open.Band(model.InvalidDistance()))
	assert.Equal(t, model.BandDanger, closed.Band(model.InvalidDistance()))
}

func TestArbiterDirectives(t *testing.T) {
	a := NewArbiter(model.DefaultConfig().Obstacle)

	_, d := a.Evaluate(model.Distance(80))
	assert.Equal(t, model.Drive(model.SourceObstacle, 0, 40), d)

	_, d = a.Evaluate(model.Distance(30))
	assert.Equal(t, model.DirectiveDrive, d.Kind)
	assert.Equal(t, 30.0, d.Steering)
	assert.Equal(t, 40.0, d.Speed)
	assert.Equal(t, 100*time.Millisecond, d.Settle)

	_, d = a.Evaluate(model.Distance(15))
	assert.Equal(t, -30.0, d.Steering)
	assert.Equal(t, -40.0, d.Speed)
	assert.Equal(t, 500*time.Millisecond, d.Settle)
}

func TestArbiterIsPure(t *testing.T) {
	a := NewArbiter(model.DefaultConfig().Obstacle)
	for _, cm := range []float64{5, 25, 45} {
		b1, d1 := a.Evaluate(model.Distance(cm))
		b2, d2 := a.Evaluate(model.Distance(cm))
		assert.Equal(t, b1, b2)
		assert.Equal(t, d1, d2)
	}
}
