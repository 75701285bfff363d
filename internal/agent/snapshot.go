package agent

import (
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"upbitquant/internal/model"
)

// snapshotVersion guards against loading snapshots written by an
// incompatible layout of the format below.
const snapshotVersion = 1

// tableEntry is one persisted action-value estimate.
type tableEntry struct {
	State  model.StateKey `json:"state"`
	Action int            `json:"action"`
	Value  float64        `json:"value"`
}

// snapshot is the on-disk representation of a trained agent: everything
// needed to resume or evaluate, excluding the experience log (transient by
// design).
type snapshot struct {
	Version          int                    `json:"version"`
	Config           Config                 `json:"config"`
	Epsilon          float64                `json:"epsilon"`
	Episodes         int                    `json:"episodes"`
	CumulativeReward float64                `json:"cumulative_reward"`
	Table            []tableEntry           `json:"table"`
	History          []model.EpisodeMetrics `json:"history"`
}

// Save serializes the agent's learned state as JSON. The written blob
// round-trips exactly through Load for the value table, configuration and
// counters.
func (a *Agent) Save(w io.Writer) error {
	snap := snapshot{
		Version:          snapshotVersion,
		Config:           a.cfg,
		Epsilon:          a.epsilon,
		Episodes:         a.episodes,
		CumulativeReward: a.cumulativeReward,
		Table:            a.table.entries(),
		History:          a.history,
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("encoding agent snapshot: %w", err)
	}
	return nil
}

// Load replaces the agent's state from a snapshot previously written by
// Save. The replacement is atomic: the snapshot is decoded and validated
// into staging state first, and on any failure the error wraps
// ErrBadSnapshot and the agent's prior in-memory state is left untouched.
func (a *Agent) Load(r io.Reader) error {
	var snap snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("%w: decoding: %v", ErrBadSnapshot, err)
	}

	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, snap.Version)
	}
	if err := validate.Struct(snap.Config); err != nil {
		return fmt.Errorf("%w: config: %v", ErrBadSnapshot, err)
	}
	if snap.Epsilon < snap.Config.EpsilonMin || snap.Epsilon > 1 {
		return fmt.Errorf("%w: epsilon %v out of range", ErrBadSnapshot, snap.Epsilon)
	}
	if snap.Episodes < 0 {
		return fmt.Errorf("%w: negative episode count %d", ErrBadSnapshot, snap.Episodes)
	}
	for _, e := range snap.Table {
		if e.Action < 0 || e.Action >= a.actions {
			return fmt.Errorf("%w: table entry with action %d outside action space", ErrBadSnapshot, e.Action)
		}
	}

	// Validation passed: apply the whole snapshot.
	a.cfg = snap.Config
	a.discretizer = Discretizer{Bins: snap.Config.Bins}
	a.epsilon = snap.Epsilon
	a.episodes = snap.Episodes
	a.cumulativeReward = snap.CumulativeReward
	a.history = snap.History
	a.table.restore(snap.Table)
	a.experience = NewExperienceLog(snap.Config.BufferCap)

	log.Info().
		Int("entries", len(snap.Table)).
		Int("episodes", snap.Episodes).
		Float64("epsilon", snap.Epsilon).
		Msg("agent snapshot loaded")

	return nil
}

// SaveFile writes the agent snapshot to a file, creating or truncating it.
func (a *Agent) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	if err := a.Save(f); err != nil {
		return err
	}
	return f.Sync()
}

// LoadFile reads an agent snapshot from a file.
func (a *Agent) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening snapshot file: %v", ErrBadSnapshot, err)
	}
	defer f.Close()

	return a.Load(f)
}
