package agent

import (
	"math"

	"upbitquant/internal/model"
)

// Discretizer maps continuous observations onto the bounded integer grid the
// value table is keyed by. It is a pure function of its inputs: the same
// observation and bin count always produce the same key.
type Discretizer struct {
	// Bins is the number of buckets per observation dimension. Every
	// component of a produced key lies in [0, Bins).
	Bins int
}

// Discretize buckets each observation dimension as floor(value*bins),
// clamped into [0, bins-1]. Non-finite inputs (NaN, ±Inf) map to bucket 0
// so a corrupt observation degrades gracefully instead of poisoning the
// table key. Clamping happens in float space: converting an out-of-range
// float to int is implementation-defined and would send huge values to the
// wrong end of the grid.
func (d Discretizer) Discretize(obs model.Observation) model.StateKey {
	var key model.StateKey
	for i, v := range obs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			key[i] = 0
			continue
		}

		scaled := math.Floor(v * float64(d.Bins))
		switch {
		case scaled < 0:
			key[i] = 0
		case scaled >= float64(d.Bins):
			key[i] = d.Bins - 1
		default:
			key[i] = int(scaled)
		}
	}
	return key
}
