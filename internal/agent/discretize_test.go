package agent

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"upbitquant/internal/model"
)

func Test_Discretize(t *testing.T) {
	d := Discretizer{Bins: 10}

	tests := []struct {
		name        string
		obs         model.Observation
		expected    model.StateKey
		description string
	}{
		{
			name:        "Zero observation",
			obs:         model.Observation{0, 0, 0, 0},
			expected:    model.StateKey{0, 0, 0, 0},
			description: "All-zero inputs land in the lowest bucket",
		},
		{
			name:        "Fractional values",
			obs:         model.Observation{0.05, 0.25, 0.99, 0.1},
			expected:    model.StateKey{0, 2, 9, 1},
			description: "floor(v*bins) picks the bucket for fractional inputs",
		},
		{
			name:        "Large values clamp to top bucket",
			obs:         model.Observation{1000, 5, 1.0, 42},
			expected:    model.StateKey{9, 9, 9, 9},
			description: "Values at or above 1.0 clamp to bins-1",
		},
		{
			name:        "Negative values clamp to bottom bucket",
			obs:         model.Observation{-1, -0.001, 0.5, -100},
			expected:    model.StateKey{0, 0, 5, 0},
			description: "Negative values clamp to bucket 0",
		},
		{
			name:        "Values beyond int range clamp to the grid ends",
			obs:         model.Observation{1e300, -1e300, math.MaxFloat64, 0.5},
			expected:    model.StateKey{9, 0, 9, 5},
			description: "Scaled values outside the int range must land on the correct end, not wrap",
		},
		{
			name:        "Non-finite values degrade to bucket zero",
			obs:         model.Observation{math.NaN(), math.Inf(1), math.Inf(-1), 0.5},
			expected:    model.StateKey{0, 0, 0, 5},
			description: "NaN and infinities map to bucket 0 instead of corrupting the key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, d.Discretize(tt.obs), tt.description)
		})
	}
}

func Test_Discretize_IsPure(t *testing.T) {
	d := Discretizer{Bins: 10}
	obs := model.Observation{0.37, 0.61, 0.02, 0.88}

	first := d.Discretize(obs)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, d.Discretize(obs))
	}
}

func Test_Discretize_RangeInvariant(t *testing.T) {
	for _, bins := range []int{1, 2, 10, 37} {
		d := Discretizer{Bins: bins}
		for _, v := range []float64{-1e300, -1e9, -0.5, 0, 1e-12, 0.5, 0.999, 1, 7.3, 1e9, 1e300, math.MaxFloat64} {
			key := d.Discretize(model.Observation{v, v, v, v})
			for i, k := range key {
				assert.GreaterOrEqual(t, k, 0, "bins=%d v=%v dim=%d", bins, v, i)
				assert.Less(t, k, bins, "bins=%d v=%v dim=%d", bins, v, i)
			}
		}
	}
}
