// Package agent implements the tabular Q-learning trading agent.
//
// The agent composes three pieces: a Discretizer that buckets continuous
// market observations into table keys, a ValueTable holding action-value
// estimates, and a bounded ExperienceLog of recent transitions. Action
// selection is epsilon-greedy with decaying exploration; learning is the
// exact one-step Q-learning update.
//
// Availability is absolute: ChooseAction never fails. Any internal
// computation problem degrades to the safe hold action instead of
// propagating an error into the training loop.
package agent

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"upbitquant/internal/model"
)

var (
	// ErrInvalidConfig indicates invalid agent construction parameters.
	ErrInvalidConfig = errors.New("invalid agent configuration")

	// ErrBadSnapshot indicates a malformed or incompatible persisted
	// snapshot. Load fails atomically: in-memory state is untouched.
	ErrBadSnapshot = errors.New("bad agent snapshot")
)

// validate checks config structs against their struct tags.
var validate = validator.New()

const (
	// exploreMaxAmount bounds the random trade size while exploring.
	exploreMaxAmount = 100

	// exploitMaxAmount bounds the random trade size attached to a greedy
	// buy/sell decision.
	exploitMaxAmount = 50

	// summaryWindow is how many recent episodes the performance summary
	// averages over.
	summaryWindow = 10
)

// Config holds the learning hyperparameters. It is immutable once bound to
// an agent except for the exploration rate, which the agent itself decays.
type Config struct {
	Alpha        float64 `json:"alpha" validate:"gt=0,lte=1"`          // learning rate
	Gamma        float64 `json:"gamma" validate:"gte=0,lte=1"`         // discount factor
	Epsilon      float64 `json:"epsilon" validate:"gte=0,lte=1"`       // initial exploration rate
	EpsilonDecay float64 `json:"epsilon_decay" validate:"gt=0,lte=1"`  // per-episode decay factor
	EpsilonMin   float64 `json:"epsilon_min" validate:"gte=0,lte=1"`   // exploration floor
	BufferCap    int     `json:"buffer_cap" validate:"gt=0"`           // experience log capacity
	Bins         int     `json:"bins" validate:"gt=0"`                 // discretization buckets per dimension

	// Seed fixes the exploration RNG for reproducible runs; 0 seeds from
	// the clock.
	Seed int64 `json:"seed,omitempty"`
}

// DefaultConfig returns hyperparameters that train stably on short price
// series.
func DefaultConfig() Config {
	return Config{
		Alpha:        0.5,
		Gamma:        0.6,
		Epsilon:      0.1,
		EpsilonDecay: 0.995,
		EpsilonMin:   0.01,
		BufferCap:    10000,
		Bins:         10,
	}
}

// Agent is a tabular Q-learning trading agent.
//
// An Agent owns its value table, experience log and exploration state
// exclusively. It is not safe for concurrent use; independent agents may
// train in parallel with no shared state.
type Agent struct {
	cfg     Config
	actions int

	discretizer Discretizer
	table       *ValueTable
	experience  *ExperienceLog

	epsilon          float64
	episodes         int
	cumulativeReward float64
	history          []model.EpisodeMetrics

	rng *rand.Rand
}

// New validates the configuration and returns an agent ready to train.
// The action space size is the number of discrete action indices the agent
// chooses between.
func New(actions int, cfg Config) (*Agent, error) {
	if actions < 1 {
		return nil, fmt.Errorf("%w: action space size must be >= 1, got %d", ErrInvalidConfig, actions)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	a := &Agent{
		cfg:         cfg,
		actions:     actions,
		discretizer: Discretizer{Bins: cfg.Bins},
		table:       NewValueTable(),
		experience:  NewExperienceLog(cfg.BufferCap),
		epsilon:     cfg.Epsilon,
		rng:         rand.New(rand.NewSource(seed)),
	}

	log.Debug().
		Float64("alpha", cfg.Alpha).
		Float64("gamma", cfg.Gamma).
		Float64("epsilon", cfg.Epsilon).
		Int("bins", cfg.Bins).
		Msg("agent initialized")

	return a, nil
}

// ChooseAction selects an action for the observation with an epsilon-greedy
// policy: with probability epsilon a structurally valid random action,
// otherwise the value-table argmax with ties broken by lowest action index.
//
// ChooseAction never fails. If selection cannot complete normally the agent
// returns the safe hold action, so a long training run survives isolated
// bad observations.
func (a *Agent) ChooseAction(obs model.Observation) (action model.Action) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("recover", r).Msg("action selection failed, holding")
			action = model.HoldAction()
		}
	}()

	if a.rng.Float64() < a.epsilon {
		return a.randomAction()
	}
	return a.greedyAction(obs)
}

// randomAction produces a uniformly random action type with a bounded
// positive amount.
func (a *Agent) randomAction() model.Action {
	return model.Action{
		Type:   model.ActionType(a.rng.Intn(a.actions)),
		Amount: decimal.NewFromInt(a.rng.Int63n(exploreMaxAmount) + 1),
	}
}

// greedyAction picks the argmax action for the discretized observation.
// Hold carries a zero amount; buy and sell carry a bounded random amount
// since the table only ranks action types, not sizes.
func (a *Agent) greedyAction(obs model.Observation) model.Action {
	state := a.discretizer.Discretize(obs)
	best := a.table.BestAction(state, a.actions)

	if model.ActionType(best) == model.Hold {
		return model.HoldAction()
	}
	return model.Action{
		Type:   model.ActionType(best),
		Amount: decimal.NewFromInt(a.rng.Int63n(exploitMaxAmount) + 1),
	}
}

// Learn updates the value table from one observed transition and appends it
// to the experience log, evicting the oldest entry at capacity.
func (a *Agent) Learn(obs model.Observation, action model.Action, reward float64, nextObs model.Observation) {
	state := a.discretizer.Discretize(obs)
	next := a.discretizer.Discretize(nextObs)

	a.table.Update(state, int(action.Type), reward, next, a.actions, a.cfg.Alpha, a.cfg.Gamma)
	a.experience.Append(model.Transition{
		Obs:     obs,
		Action:  action,
		Reward:  reward,
		NextObs: nextObs,
	})
	a.cumulativeReward += reward
}

// DecayExploration lowers epsilon by the configured decay factor, flooring
// at the configured minimum. Monotone non-increasing and idempotent at the
// floor.
func (a *Agent) DecayExploration() {
	a.epsilon = max(a.cfg.EpsilonMin, a.epsilon*a.cfg.EpsilonDecay)
}

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 { return a.epsilon }

// TableSize returns the number of stored action-value entries.
func (a *Agent) TableSize() int { return a.table.Len() }

// Experience returns the agent's experience log.
func (a *Agent) Experience() *ExperienceLog { return a.experience }

// Episodes returns the number of recorded training episodes.
func (a *Agent) Episodes() int { return a.episodes }

// CumulativeReward returns the total reward accumulated across all learning
// updates since the last reset.
func (a *Agent) CumulativeReward() float64 { return a.cumulativeReward }

// Config returns a copy of the agent's configuration. The Epsilon field
// reflects the configured initial value, not the decayed one; use Epsilon()
// for the live rate.
func (a *Agent) Config() Config { return a.cfg }

// RecordEpisode appends an episode record to the agent's metrics history
// and bumps the episode counter. Called by the training loop after each
// completed episode.
func (a *Agent) RecordEpisode(m model.EpisodeMetrics) {
	a.episodes++
	a.history = append(a.history, m)
}

// History returns the recorded per-episode metrics, oldest first.
func (a *Agent) History() []model.EpisodeMetrics { return a.history }

// Summary describes recent training performance.
type Summary struct {
	Episodes         int     `json:"episodes"`
	CumulativeReward float64 `json:"cumulative_reward"`
	RecentMeanReward float64 `json:"recent_mean_reward"`
	RecentBestReward float64 `json:"recent_best_reward"`
	Epsilon          float64 `json:"epsilon"`
	TableSize        int     `json:"table_size"`
}

// Summarize reports aggregate performance over the most recent episodes.
func (a *Agent) Summarize() Summary {
	s := Summary{
		Episodes:         a.episodes,
		CumulativeReward: a.cumulativeReward,
		Epsilon:          a.epsilon,
		TableSize:        a.table.Len(),
	}

	recent := a.history
	if len(recent) > summaryWindow {
		recent = recent[len(recent)-summaryWindow:]
	}
	if len(recent) == 0 {
		return s
	}

	sum := 0.0
	best := recent[0].TotalReward
	for _, m := range recent {
		sum += m.TotalReward
		if m.TotalReward > best {
			best = m.TotalReward
		}
	}
	s.RecentMeanReward = sum / float64(len(recent))
	s.RecentBestReward = best
	return s
}

// Reset returns the agent to its pre-training state: empty table and
// experience log, zeroed counters and history, exploration back at the
// configured initial rate.
func (a *Agent) Reset() {
	a.table.Clear()
	a.experience.Clear()
	a.episodes = 0
	a.cumulativeReward = 0
	a.history = nil
	a.epsilon = a.cfg.Epsilon

	log.Debug().Msg("agent reset")
}
