package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbitquant/internal/model"
)

// deterministicConfig fixes the RNG seed so exploration is reproducible.
func deterministicConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 42
	return cfg
}

func Test_New_Validation(t *testing.T) {
	tests := []struct {
		name        string
		actions     int
		mutate      func(*Config)
		expectError bool
		description string
	}{
		{
			name:        "Default config",
			actions:     model.ActionCount,
			mutate:      func(*Config) {},
			expectError: false,
			description: "Should accept the default hyperparameters",
		},
		{
			name:        "Zero actions",
			actions:     0,
			mutate:      func(*Config) {},
			expectError: true,
			description: "Should reject an empty action space",
		},
		{
			name:        "Zero learning rate",
			actions:     model.ActionCount,
			mutate:      func(c *Config) { c.Alpha = 0 },
			expectError: true,
			description: "Should reject alpha outside (0, 1]",
		},
		{
			name:        "Learning rate above one",
			actions:     model.ActionCount,
			mutate:      func(c *Config) { c.Alpha = 1.5 },
			expectError: true,
			description: "Should reject alpha outside (0, 1]",
		},
		{
			name:        "Negative discount",
			actions:     model.ActionCount,
			mutate:      func(c *Config) { c.Gamma = -0.1 },
			expectError: true,
			description: "Should reject gamma outside [0, 1]",
		},
		{
			name:        "Epsilon above one",
			actions:     model.ActionCount,
			mutate:      func(c *Config) { c.Epsilon = 1.1 },
			expectError: true,
			description: "Should reject epsilon outside [0, 1]",
		},
		{
			name:        "Zero decay",
			actions:     model.ActionCount,
			mutate:      func(c *Config) { c.EpsilonDecay = 0 },
			expectError: true,
			description: "Should reject a decay factor outside (0, 1]",
		},
		{
			name:        "Zero buffer capacity",
			actions:     model.ActionCount,
			mutate:      func(c *Config) { c.BufferCap = 0 },
			expectError: true,
			description: "Should reject a non-positive experience capacity",
		},
		{
			name:        "Zero bins",
			actions:     model.ActionCount,
			mutate:      func(c *Config) { c.Bins = 0 },
			expectError: true,
			description: "Should reject a non-positive bin count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			a, err := New(tt.actions, cfg)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidConfig, tt.description)
				assert.Nil(t, a)
			} else {
				assert.NoError(t, err, tt.description)
				assert.NotNil(t, a)
			}
		})
	}
}

func Test_ChooseAction_GreedyOnEmptyTable(t *testing.T) {
	cfg := deterministicConfig()
	cfg.Epsilon = 0
	a, err := New(model.ActionCount, cfg)
	require.NoError(t, err)

	// With no learned values every action ties at zero and the lowest index
	// wins, so the agent holds with zero amount.
	for i := 0; i < 20; i++ {
		action := a.ChooseAction(model.Observation{0.1, 0.2, 0.3, 0.4})
		assert.Equal(t, model.Hold, action.Type)
		assert.True(t, action.Amount.IsZero())
	}
}

func Test_ChooseAction_GreedyPicksLearnedBest(t *testing.T) {
	cfg := deterministicConfig()
	cfg.Epsilon = 0
	a, err := New(model.ActionCount, cfg)
	require.NoError(t, err)

	obs := model.Observation{0.15, 0.25, 0.35, 0.45}
	state := a.discretizer.Discretize(obs)
	a.table.values[entryKey{State: state, Action: int(model.Buy)}] = 3.0

	for i := 0; i < 20; i++ {
		action := a.ChooseAction(obs)
		assert.Equal(t, model.Buy, action.Type)

		amount := action.Amount.IntPart()
		assert.GreaterOrEqual(t, amount, int64(1), "greedy trade amount is at least 1")
		assert.LessOrEqual(t, amount, int64(exploitMaxAmount), "greedy trade amount is bounded")
	}
}

func Test_ChooseAction_ExploresValidActions(t *testing.T) {
	cfg := deterministicConfig()
	cfg.Epsilon = 1 // always explore
	a, err := New(model.ActionCount, cfg)
	require.NoError(t, err)

	seen := make(map[model.ActionType]bool)
	for i := 0; i < 200; i++ {
		action := a.ChooseAction(model.Observation{0.1, 0.2, 0.3, 0.4})
		assert.True(t, action.Type.Valid(), "explored action type must be valid")

		amount := action.Amount.IntPart()
		assert.GreaterOrEqual(t, amount, int64(1))
		assert.LessOrEqual(t, amount, int64(exploreMaxAmount))

		seen[action.Type] = true
	}

	// 200 uniform draws over 3 types hit every type.
	assert.Len(t, seen, model.ActionCount, "exploration should cover the whole action space")
}

func Test_ChooseAction_RecoversToHold(t *testing.T) {
	a, err := New(model.ActionCount, deterministicConfig())
	require.NoError(t, err)

	// Break the table so greedy selection panics; the agent must degrade to
	// a hold instead of crashing the training loop.
	a.table = nil
	a.epsilon = 0

	action := a.ChooseAction(model.Observation{0.1, 0.2, 0.3, 0.4})
	assert.Equal(t, model.Hold, action.Type)
	assert.True(t, action.Amount.IsZero())
}

func Test_Learn(t *testing.T) {
	cfg := deterministicConfig()
	a, err := New(model.ActionCount, cfg)
	require.NoError(t, err)

	obs := model.Observation{0.1, 0.2, 0.3, 0.4}
	next := model.Observation{0.5, 0.6, 0.7, 0.8}
	action := model.Action{Type: model.Buy}

	a.Learn(obs, action, 10, next)

	state := a.discretizer.Discretize(obs)
	assert.InDelta(t, 5.0, a.table.Get(state, int(model.Buy)), 1e-12,
		"first update absorbs alpha*reward from a zero estimate")
	assert.Equal(t, 1, a.TableSize())
	assert.Equal(t, 1, a.Experience().Len())
	assert.InDelta(t, 10.0, a.CumulativeReward(), 1e-12)
}

func Test_DecayExploration(t *testing.T) {
	cfg := deterministicConfig()
	cfg.Epsilon = 0.5
	cfg.EpsilonDecay = 0.5
	cfg.EpsilonMin = 0.2
	a, err := New(model.ActionCount, cfg)
	require.NoError(t, err)

	a.DecayExploration()
	assert.InDelta(t, 0.25, a.Epsilon(), 1e-12)

	// 0.125 is below the floor: clamp.
	a.DecayExploration()
	assert.InDelta(t, 0.2, a.Epsilon(), 1e-12)

	// Idempotent at the floor.
	a.DecayExploration()
	assert.InDelta(t, 0.2, a.Epsilon(), 1e-12)
}

func Test_Summarize(t *testing.T) {
	a, err := New(model.ActionCount, deterministicConfig())
	require.NoError(t, err)

	// Before any episode the summary is all zeros.
	s := a.Summarize()
	assert.Zero(t, s.Episodes)
	assert.Zero(t, s.RecentMeanReward)
	assert.Zero(t, s.RecentBestReward)

	// 15 episodes with rewards 1..15: the window covers the last 10.
	for i := 1; i <= 15; i++ {
		a.RecordEpisode(model.EpisodeMetrics{Episode: i, TotalReward: float64(i)})
	}

	s = a.Summarize()
	assert.Equal(t, 15, s.Episodes)
	assert.InDelta(t, 10.5, s.RecentMeanReward, 1e-12, "mean of rewards 6..15")
	assert.InDelta(t, 15.0, s.RecentBestReward, 1e-12)
	assert.Len(t, a.History(), 15)
}

func Test_Reset(t *testing.T) {
	cfg := deterministicConfig()
	a, err := New(model.ActionCount, cfg)
	require.NoError(t, err)

	a.Learn(model.Observation{0.1, 0.2, 0.3, 0.4}, model.Action{Type: model.Buy}, 5, model.Observation{0.5, 0.6, 0.7, 0.8})
	a.RecordEpisode(model.EpisodeMetrics{Episode: 1, TotalReward: 5})
	a.DecayExploration()

	a.Reset()

	assert.Zero(t, a.TableSize())
	assert.Zero(t, a.Experience().Len())
	assert.Zero(t, a.Episodes())
	assert.Zero(t, a.CumulativeReward())
	assert.Empty(t, a.History())
	assert.Equal(t, cfg.Epsilon, a.Epsilon(), "exploration returns to the configured initial rate")
}
