package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"upbitquant/internal/model"
)

func Test_ValueTable_GetDefaultsToZero(t *testing.T) {
	table := NewValueTable()

	assert.Zero(t, table.Get(model.StateKey{1, 2, 3, 4}, 0))
	assert.Zero(t, table.Len(), "reading must not materialize entries")
}

func Test_ValueTable_Update(t *testing.T) {
	state := model.StateKey{1, 1, 1, 1}
	next := model.StateKey{2, 2, 2, 2}

	tests := []struct {
		name        string
		alpha       float64
		gamma       float64
		reward      float64
		nextValues  [3]float64
		expected    float64
		description string
	}{
		{
			name:        "First update from zero",
			alpha:       0.5,
			gamma:       0.6,
			reward:      10,
			nextValues:  [3]float64{0, 0, 0},
			expected:    5, // 0 + 0.5*(10 + 0.6*0 - 0)
			description: "Half the reward is absorbed on the first visit",
		},
		{
			name:        "Bootstrap from best next value",
			alpha:       0.5,
			gamma:       0.6,
			reward:      10,
			nextValues:  [3]float64{1, 8, 3},
			expected:    7.4, // 0 + 0.5*(10 + 0.6*8 - 0)
			description: "The max over next-state actions feeds the target",
		},
		{
			name:        "Full learning rate overwrites",
			alpha:       1,
			gamma:       0,
			reward:      -4,
			nextValues:  [3]float64{100, 100, 100},
			expected:    -4,
			description: "With alpha=1 and gamma=0 the estimate becomes the raw reward",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewValueTable()
			for a, v := range tt.nextValues {
				if v != 0 {
					table.values[entryKey{State: next, Action: a}] = v
				}
			}

			table.Update(state, 1, tt.reward, next, 3, tt.alpha, tt.gamma)
			assert.InDelta(t, tt.expected, table.Get(state, 1), 1e-12, tt.description)
		})
	}
}

// Test_ValueTable_ConvergesToReward repeats the same transition with gamma=0
// and checks the estimate approaches the reward monotonically.
func Test_ValueTable_ConvergesToReward(t *testing.T) {
	table := NewValueTable()
	state := model.StateKey{3, 3, 3, 3}
	next := model.StateKey{4, 4, 4, 4}
	const reward = 10.0

	prev := table.Get(state, 1)
	for i := 0; i < 50; i++ {
		table.Update(state, 1, reward, next, 3, 0.5, 0)
		v := table.Get(state, 1)
		assert.Greater(t, v, prev, "estimate must increase toward the reward at step %d", i)
		assert.LessOrEqual(t, v, reward)
		prev = v
	}
	assert.InDelta(t, reward, prev, 1e-9)
}

func Test_ValueTable_BestAction(t *testing.T) {
	state := model.StateKey{1, 2, 3, 4}

	tests := []struct {
		name        string
		values      map[int]float64
		expected    int
		description string
	}{
		{
			name:        "Empty row",
			values:      nil,
			expected:    0,
			description: "An unseen state deterministically yields action 0",
		},
		{
			name:        "Clear winner",
			values:      map[int]float64{0: 1, 1: 5, 2: 3},
			expected:    1,
			description: "The highest estimate wins",
		},
		{
			name:        "Tie broken by lowest index",
			values:      map[int]float64{0: 2, 1: 7, 2: 7},
			expected:    1,
			description: "Equal estimates resolve to the lowest action index",
		},
		{
			name:        "All negative prefers least bad",
			values:      map[int]float64{0: -3, 1: -1, 2: -2},
			expected:    1,
			description: "Argmax also holds below zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := NewValueTable()
			for a, v := range tt.values {
				table.values[entryKey{State: state, Action: a}] = v
			}
			assert.Equal(t, tt.expected, table.BestAction(state, 3), tt.description)
		})
	}
}

func Test_ValueTable_Clear(t *testing.T) {
	table := NewValueTable()
	table.Update(model.StateKey{1, 1, 1, 1}, 0, 5, model.StateKey{2, 2, 2, 2}, 3, 0.5, 0.6)
	assert.Equal(t, 1, table.Len())

	table.Clear()
	assert.Zero(t, table.Len())
	assert.Zero(t, table.Get(model.StateKey{1, 1, 1, 1}, 0))
}
