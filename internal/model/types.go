// Package model defines core data types for the Q-learning trading simulator.
//
// This package contains the fundamental structures shared between the market
// simulation, the learning agent and the training orchestration: actions,
// observations, discretized state keys, transitions and per-episode metrics.
// All monetary values use decimal.Decimal for precise financial calculations;
// learning quantities (rewards, value estimates) are float64 because they feed
// floating-point update rules, not accounting.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActionType identifies what the agent wants to do with its position.
type ActionType int

const (
	// Hold keeps balance and position unchanged.
	Hold ActionType = iota

	// Buy converts balance into position at the current price.
	Buy

	// Sell converts position back into balance at the current price.
	Sell

	// ActionCount is the size of the discrete action space.
	ActionCount = 3
)

// String returns the canonical lower-case name of the action type.
func (a ActionType) String() string {
	switch a {
	case Hold:
		return "hold"
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Valid reports whether the action type is one of Hold, Buy or Sell.
func (a ActionType) Valid() bool {
	return a >= Hold && a <= Sell
}

// Action is a single trading decision: what to do and how much of it.
//
// Amount is denominated in units of the traded asset. It is advisory for
// Hold and an upper bound for Buy/Sell; the market clamps it to what the
// current balance or position actually affords.
type Action struct {
	Type   ActionType      `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// HoldAction is the safe no-op action the agent falls back to when action
// selection cannot complete normally.
func HoldAction() Action {
	return Action{Type: Hold, Amount: decimal.Zero}
}

// ObservationDims is the fixed dimensionality of market observations.
const ObservationDims = 4

// Observation is the continuous market state visible to the agent:
// [balance, asset value, position size, current price]. Values are derived
// from the market on every step and never persisted.
type Observation [ObservationDims]float64

// StateKey is an observation discretized into bounded integer bins, one per
// observation dimension. It is the lookup key of the value table; every
// component lies in [0, bins).
type StateKey [ObservationDims]int

// Transition is one learning experience: the observation the agent acted on,
// the action it took, the reward it received and the observation that
// followed.
type Transition struct {
	Obs     Observation `json:"obs"`
	Action  Action      `json:"action"`
	Reward  float64     `json:"reward"`
	NextObs Observation `json:"next_obs"`
}

// EpisodeMetrics summarizes one completed training episode. Records are
// append-only: once emitted by the runner they are never mutated.
type EpisodeMetrics struct {
	Episode     int     `json:"episode"`
	TotalReward float64 `json:"total_reward"`
	Steps       int     `json:"steps"`
	Epsilon     float64 `json:"epsilon"`
	TableSize   int     `json:"table_size"`
	BadActions  int     `json:"bad_actions,omitempty"`
}

// PriceSeries is an ordered sequence of strictly positive prices over which
// the market simulation runs. It is validated once at market construction
// and treated as immutable afterwards.
type PriceSeries []decimal.Decimal

// Validate checks the series invariants: at least two points, all strictly
// positive. A series that fails validation must not be handed to a market.
func (ps PriceSeries) Validate() error {
	if len(ps) < 2 {
		return fmt.Errorf("price series needs at least 2 points, got %d", len(ps))
	}
	for i, p := range ps {
		if p.Sign() <= 0 {
			return fmt.Errorf("price at index %d is not positive: %s", i, p)
		}
	}
	return nil
}

// FromFloats builds a PriceSeries from float64 prices. Convenience for tests
// and synthetic data generation.
func FromFloats(prices []float64) PriceSeries {
	ps := make(PriceSeries, len(prices))
	for i, p := range prices {
		ps[i] = decimal.NewFromFloat(p)
	}
	return ps
}

// TradeTick is a normalized trade message from an exchange stream, the raw
// material the price collector samples a PriceSeries from.
type TradeTick struct {
	Pair      string          // Trading pair symbol (e.g., "BTC-USDT")
	Price     decimal.Decimal // Trade execution price
	Quantity  decimal.Decimal // Volume of base asset traded
	Timestamp time.Time       // Exchange timestamp of the trade
}
