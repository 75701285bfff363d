// Package trainer drives the agent against the market environment.
//
// The Runner executes single episodes (reset, act/step/learn loop, decay),
// the Trainer orchestrates multi-episode training runs and metrics
// publication, and Evaluate measures a trained agent without learning.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"upbitquant/internal/agent"
	"upbitquant/internal/market"
	"upbitquant/internal/model"
)

// defaultMaxSteps is the hard per-episode step ceiling. It guarantees
// progress even if the market configuration would never signal termination.
const defaultMaxSteps = 1000

// Publisher receives per-episode metrics. Implementations must not block;
// the training loop tolerates a nil publisher.
type Publisher interface {
	Publish(model.EpisodeMetrics)
}

// Config controls episode execution.
type Config struct {
	// MaxSteps caps the number of steps per episode; 0 means the default
	// ceiling of 1000.
	MaxSteps int

	// Learn disables the value-table update and experience logging when
	// false, for pure evaluation runs.
	Learn bool
}

// Runner drives one agent against one market. It borrows both for the
// duration of a run and never mutates their internals directly.
type Runner struct {
	market *market.Market
	agent  *agent.Agent
	cfg    Config

	// evalRuns numbers non-learning episodes, which the agent's own episode
	// counter never sees.
	evalRuns int
}

// NewRunner returns a runner over the given market and agent.
func NewRunner(m *market.Market, a *agent.Agent, cfg Config) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	return &Runner{market: m, agent: a, cfg: cfg}
}

// RunEpisode executes one complete episode: market reset, then an
// act/step/learn loop until the market signals termination or the step
// ceiling is reached. When learning is enabled the agent's exploration is
// decayed and the episode is recorded in its history afterwards.
//
// The context is checked between steps; cancellation aborts cleanly because
// every step is a complete, self-contained transition. A per-step invalid
// action is counted and skipped rather than aborting the episode.
func (r *Runner) RunEpisode(ctx context.Context) (model.EpisodeMetrics, error) {
	obs := r.market.Reset()

	var (
		totalReward float64
		steps       int
		badActions  int
	)

	for steps < r.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			return model.EpisodeMetrics{}, fmt.Errorf("episode aborted: %w", err)
		}

		action := r.agent.ChooseAction(obs)
		nextObs, reward, done, _, err := r.market.Step(action)
		if errors.Is(err, market.ErrInvalidAction) {
			// Recoverable: the rejected step left the market untouched.
			// Count it and retry the step as a hold so the episode always
			// makes progress.
			badActions++
			log.Warn().Err(err).Int("step", steps).Msg("invalid action, holding instead")
			action = model.HoldAction()
			nextObs, reward, done, _, err = r.market.Step(action)
		}
		if err != nil {
			return model.EpisodeMetrics{}, fmt.Errorf("market step failed: %w", err)
		}

		if r.cfg.Learn {
			r.agent.Learn(obs, action, reward, nextObs)
		}

		obs = nextObs
		totalReward += reward
		steps++

		if done {
			break
		}
	}

	metrics := model.EpisodeMetrics{
		TotalReward: totalReward,
		Steps:       steps,
		TableSize:   r.agent.TableSize(),
		BadActions:  badActions,
	}

	if r.cfg.Learn {
		r.agent.DecayExploration()
		metrics.Episode = r.agent.Episodes() + 1
		metrics.Epsilon = r.agent.Epsilon()
		r.agent.RecordEpisode(metrics)
	} else {
		r.evalRuns++
		metrics.Episode = r.evalRuns
		metrics.Epsilon = r.agent.Epsilon()
	}

	return metrics, nil
}

// Trainer runs multi-episode training and publishes per-episode metrics.
type Trainer struct {
	runner    *Runner
	publisher Publisher
}

// NewTrainer wraps a runner with metrics publication. The publisher may be
// nil; training then runs silently.
func NewTrainer(r *Runner, p Publisher) *Trainer {
	return &Trainer{runner: r, publisher: p}
}

// Train runs the given number of episodes, publishing metrics after each
// one. It stops early only on context cancellation; per-episode recoverable
// failures are aggregated into the returned records, not fatal.
func (t *Trainer) Train(ctx context.Context, episodes int) ([]model.EpisodeMetrics, error) {
	if episodes <= 0 {
		return nil, fmt.Errorf("episode count must be positive, got %d", episodes)
	}

	out := make([]model.EpisodeMetrics, 0, episodes)
	for i := 0; i < episodes; i++ {
		m, err := t.runner.RunEpisode(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, m)

		if t.publisher != nil {
			t.publisher.Publish(m)
		}

		log.Info().
			Int("episode", m.Episode).
			Float64("reward", m.TotalReward).
			Int("steps", m.Steps).
			Float64("epsilon", m.Epsilon).
			Int("tableSize", m.TableSize).
			Msg("episode complete")
	}
	return out, nil
}

// Evaluate runs the agent for n episodes without learning or exploration
// decay and returns the mean and standard deviation of total episode
// reward. The agent's value table and epsilon are left exactly as they
// were.
func Evaluate(ctx context.Context, m *market.Market, a *agent.Agent, n int) (mean, std float64, err error) {
	if n <= 0 {
		return 0, 0, fmt.Errorf("episode count must be positive, got %d", n)
	}

	runner := NewRunner(m, a, Config{Learn: false})

	rewards := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		em, err := runner.RunEpisode(ctx)
		if err != nil {
			return 0, 0, err
		}
		rewards = append(rewards, em.TotalReward)
	}

	for _, r := range rewards {
		mean += r
	}
	mean /= float64(len(rewards))

	var variance float64
	for _, r := range rewards {
		d := r - mean
		variance += d * d
	}
	std = math.Sqrt(variance / float64(len(rewards)))

	return mean, std, nil
}
