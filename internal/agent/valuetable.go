package agent

import "upbitquant/internal/model"

// entryKey addresses one action-value estimate: a discretized state plus an
// action index.
type entryKey struct {
	State  model.StateKey
	Action int
}

// ValueTable is the tabular action-value function: a map from
// (discretized state, action index) to a scalar estimate.
//
// Absent entries read as 0.0, which doubles as optimistic-zero
// initialization. The table grows monotonically during training and only
// shrinks on an explicit Clear. Unlike the experience log it is unbounded:
// there is no eviction.
type ValueTable struct {
	values map[entryKey]float64
}

// NewValueTable returns an empty table.
func NewValueTable() *ValueTable {
	return &ValueTable{values: make(map[entryKey]float64)}
}

// Get returns the stored estimate for the state/action pair, or 0.0 if none
// has been written yet.
func (t *ValueTable) Get(state model.StateKey, action int) float64 {
	return t.values[entryKey{State: state, Action: action}]
}

// Update applies the one-step off-policy Q-learning rule:
//
//	target = reward + gamma * max_a Q(next, a)
//	Q(s,a) += alpha * (target - Q(s,a))
//
// The update is exact: no batching, no averaging across ties.
func (t *ValueTable) Update(state model.StateKey, action int, reward float64, next model.StateKey, actions int, alpha, gamma float64) {
	best := t.Get(next, 0)
	for a := 1; a < actions; a++ {
		if v := t.Get(next, a); v > best {
			best = v
		}
	}

	key := entryKey{State: state, Action: action}
	current := t.values[key]
	target := reward + gamma*best
	t.values[key] = current + alpha*(target-current)
}

// BestAction returns the action index with the highest estimate for the
// state, breaking ties in favor of the lowest index. On an all-zero row this
// deterministically yields action 0.
func (t *ValueTable) BestAction(state model.StateKey, actions int) int {
	best := 0
	bestValue := t.Get(state, 0)
	for a := 1; a < actions; a++ {
		if v := t.Get(state, a); v > bestValue {
			best = a
			bestValue = v
		}
	}
	return best
}

// Len returns the number of stored entries.
func (t *ValueTable) Len() int { return len(t.values) }

// Clear removes every entry.
func (t *ValueTable) Clear() {
	t.values = make(map[entryKey]float64)
}

// entries returns the table contents in unspecified order, for snapshots.
func (t *ValueTable) entries() []tableEntry {
	out := make([]tableEntry, 0, len(t.values))
	for k, v := range t.values {
		out = append(out, tableEntry{State: k.State, Action: k.Action, Value: v})
	}
	return out
}

// restore replaces the table contents from snapshot entries.
func (t *ValueTable) restore(entries []tableEntry) {
	t.values = make(map[entryKey]float64, len(entries))
	for _, e := range entries {
		t.values[entryKey{State: e.State, Action: e.Action}] = e.Value
	}
}
