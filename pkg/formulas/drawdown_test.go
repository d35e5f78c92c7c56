package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{name: "too short", values: []float64{100}, want: 0},
		{name: "strictly increasing", values: []float64{100, 110, 120}, want: 0},
		{name: "single dip", values: []float64{100, 80, 120}, want: 0.20},
		{name: "peak then crash", values: []float64{100, 200, 100}, want: 0.50},
		{name: "running peak tracks recovery", values: []float64{100, 150, 75, 200, 160}, want: 0.50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateMaxDrawdown(tt.values), 1e-12)
		})
	}
}

func TestCalculateDrawdownMetrics(t *testing.T) {
	assert.Nil(t, CalculateDrawdownMetrics([]float64{100}))

	m := CalculateDrawdownMetrics([]float64{100, 150, 75, 120})
	require.NotNil(t, m)
	assert.InDelta(t, 0.50, m.MaxDrawdown, 1e-12)
	assert.InDelta(t, 0.20, m.CurrentDrawdown, 1e-12)
	assert.Equal(t, 150.0, m.PeakValue)
	assert.Equal(t, 120.0, m.CurrentValue)
}
