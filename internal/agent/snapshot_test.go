package agent

import (
	"bytes"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upbitquant/internal/model"
)

// trainedAgent builds an agent with a few learned values and recorded
// episodes, so snapshots have non-trivial content.
func trainedAgent(t *testing.T) *Agent {
	t.Helper()

	a, err := New(model.ActionCount, deterministicConfig())
	require.NoError(t, err)

	obs := model.Observation{0.1, 0.2, 0.3, 0.4}
	next := model.Observation{0.5, 0.6, 0.7, 0.8}
	a.Learn(obs, model.Action{Type: model.Buy}, 10, next)
	a.Learn(next, model.Action{Type: model.Sell}, 4, obs)
	a.RecordEpisode(model.EpisodeMetrics{Episode: 1, TotalReward: 14, Steps: 2})
	a.DecayExploration()

	return a
}

func Test_Snapshot_RoundTrip(t *testing.T) {
	src := trainedAgent(t)

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))

	dst, err := New(model.ActionCount, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, dst.Load(&buf))

	assert.Equal(t, src.Config(), dst.Config())
	assert.Equal(t, src.Epsilon(), dst.Epsilon())
	assert.Equal(t, src.Episodes(), dst.Episodes())
	assert.Equal(t, src.CumulativeReward(), dst.CumulativeReward())
	assert.Equal(t, src.TableSize(), dst.TableSize())
	assert.Equal(t, src.History(), dst.History())

	// Learned estimates survive exactly.
	state := src.discretizer.Discretize(model.Observation{0.1, 0.2, 0.3, 0.4})
	assert.Equal(t, src.table.Get(state, int(model.Buy)), dst.table.Get(state, int(model.Buy)))

	// The experience log is transient and comes back empty.
	assert.Zero(t, dst.Experience().Len())
}

func Test_Load_Rejections(t *testing.T) {
	validSnapshot := func() snapshot {
		return snapshot{
			Version: snapshotVersion,
			Config:  DefaultConfig(),
			Epsilon: 0.1,
			Table: []tableEntry{
				{State: model.StateKey{1, 2, 3, 4}, Action: 1, Value: 5},
			},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*snapshot)
		description string
	}{
		{
			name:        "Unsupported version",
			mutate:      func(s *snapshot) { s.Version = 99 },
			description: "Should reject snapshots from an incompatible format",
		},
		{
			name:        "Invalid config",
			mutate:      func(s *snapshot) { s.Config.Alpha = -1 },
			description: "Should reject snapshots carrying an invalid configuration",
		},
		{
			name:        "Epsilon below floor",
			mutate:      func(s *snapshot) { s.Epsilon = 0.001 },
			description: "Should reject an exploration rate below the configured floor",
		},
		{
			name:        "Epsilon above one",
			mutate:      func(s *snapshot) { s.Epsilon = 1.5 },
			description: "Should reject an exploration rate above 1",
		},
		{
			name:        "Negative episode count",
			mutate:      func(s *snapshot) { s.Episodes = -1 },
			description: "Should reject a negative episode counter",
		},
		{
			name:        "Action outside space",
			mutate:      func(s *snapshot) { s.Table[0].Action = 7 },
			description: "Should reject table entries outside the action space",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := validSnapshot()
			tt.mutate(&snap)

			data, err := json.Marshal(&snap)
			require.NoError(t, err)

			a := trainedAgent(t)
			sizeBefore := a.TableSize()
			epsilonBefore := a.Epsilon()

			err = a.Load(bytes.NewReader(data))
			assert.ErrorIs(t, err, ErrBadSnapshot, tt.description)

			// A rejected load leaves the agent untouched.
			assert.Equal(t, sizeBefore, a.TableSize())
			assert.Equal(t, epsilonBefore, a.Epsilon())
		})
	}
}

func Test_Load_MalformedJSON(t *testing.T) {
	a := trainedAgent(t)
	sizeBefore := a.TableSize()

	err := a.Load(bytes.NewReader([]byte(`{"version": 1, "config": {`)))
	assert.ErrorIs(t, err, ErrBadSnapshot)
	assert.Equal(t, sizeBefore, a.TableSize())
}

func Test_SnapshotFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	src := trainedAgent(t)
	require.NoError(t, src.SaveFile(path))

	dst, err := New(model.ActionCount, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, dst.LoadFile(path))

	assert.Equal(t, src.TableSize(), dst.TableSize())
	assert.Equal(t, src.Episodes(), dst.Episodes())
}

func Test_LoadFile_Missing(t *testing.T) {
	a, err := New(model.ActionCount, DefaultConfig())
	require.NoError(t, err)

	err = a.LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrBadSnapshot)
}
