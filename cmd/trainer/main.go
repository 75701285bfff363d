/*
Package main implements the training CLI for the Q-learning trading agent.

The trainer builds a market simulation over a historical price series,
trains a tabular Q-learning agent against it for a configured number of
episodes, and writes the learned model to a snapshot file. The price series
comes either from a JSON file or from live collection off the Binance trade
stream.

Usage:

	go run main.go -prices=prices.json -episodes=500 -model=model.json
	go run main.go -symbol=BTC-USDT -collect=120 -sample-interval=5 -model=model.json

Training progress is published through the metrics dispatcher and logged
per episode. SIGINT/SIGTERM abort cleanly between steps.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"upbitquant/internal/agent"
	"upbitquant/internal/exchange"
	"upbitquant/internal/market"
	"upbitquant/internal/metrics"
	"upbitquant/internal/model"
	"upbitquant/internal/prices"
	"upbitquant/internal/trainer"
	"upbitquant/internal/utils"
)

// Command-line flags for configuring the training run
var (
	// Price source: a JSON file, or live collection when -collect > 0
	pricesPath     = flag.String("prices", "", "Path to a JSON price series file")
	symbol         = flag.String("symbol", "BTC-USDT", "Trading pair to collect live prices for")
	collect        = flag.Int("collect", 0, "Number of live price samples to collect (0 = use -prices)")
	sampleInterval = flag.Int("sample-interval", 5, "Live sampling interval in seconds")
	savePrices     = flag.String("save-prices", "", "Optional path to save a collected price series")

	// Market parameters
	balance = flag.Float64("balance", 10000, "Initial quote-currency balance")
	maxBuy  = flag.Float64("max-buy", 100, "Maximum asset amount per buy")
	maxSell = flag.Float64("max-sell", 100, "Maximum asset amount per sell")
	feeRate = flag.Float64("fee", 0.0005, "Proportional trading fee")

	// Agent hyperparameters
	alpha        = flag.Float64("alpha", 0.5, "Learning rate")
	gamma        = flag.Float64("gamma", 0.6, "Discount factor")
	epsilon      = flag.Float64("epsilon", 0.1, "Initial exploration rate")
	epsilonDecay = flag.Float64("epsilon-decay", 0.995, "Per-episode exploration decay")
	epsilonMin   = flag.Float64("epsilon-min", 0.01, "Exploration floor")
	bufferCap    = flag.Int("buffer", 10000, "Experience log capacity")
	bins         = flag.Int("bins", 10, "Discretization bins per observation dimension")
	seed         = flag.Int64("seed", 0, "Exploration RNG seed (0 = time-based)")

	// Run parameters
	episodes  = flag.Int("episodes", 1000, "Number of training episodes")
	maxSteps  = flag.Int("max-steps", 1000, "Hard step ceiling per episode")
	modelPath = flag.String("model", "model.json", "Path to write the trained agent snapshot")
)

// main wires the price source, market, agent and metrics dispatcher
// together, runs training to completion (or cancellation) and persists the
// learned model.
func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := validateFlags(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Abort cleanly between steps on Ctrl+C / SIGTERM.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	series, err := loadSeries(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to obtain price series")
	}

	mkt, err := market.New(series, market.Config{
		InitialBalance: decimal.NewFromFloat(*balance),
		MaxBuy:         decimal.NewFromFloat(*maxBuy),
		MaxSell:        decimal.NewFromFloat(*maxSell),
		FeeRate:        decimal.NewFromFloat(*feeRate),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create market")
	}

	bot, err := agent.New(model.ActionCount, agent.Config{
		Alpha:        *alpha,
		Gamma:        *gamma,
		Epsilon:      *epsilon,
		EpsilonDecay: *epsilonDecay,
		EpsilonMin:   *epsilonMin,
		BufferCap:    *bufferCap,
		Bins:         *bins,
		Seed:         *seed,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create agent")
	}

	// Fan episode metrics out to observers; training never blocks on them.
	dispatcher := metrics.NewDispatcher()
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start metrics dispatcher")
	}

	sub, err := dispatcher.Subscribe()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to metrics")
	}
	go func() {
		for m := range sub.C() {
			log.Debug().
				Int("episode", m.Episode).
				Float64("reward", m.TotalReward).
				Int("badActions", m.BadActions).
				Msg("metrics record")
		}
	}()

	runner := trainer.NewRunner(mkt, bot, trainer.Config{MaxSteps: *maxSteps, Learn: true})
	t := trainer.NewTrainer(runner, dispatcher)

	log.Info().
		Int("episodes", *episodes).
		Int("prices", len(series)).
		Float64("alpha", *alpha).
		Float64("gamma", *gamma).
		Float64("epsilon", *epsilon).
		Msg("training starting")

	if _, err := t.Train(ctx, *episodes); err != nil {
		// A cancelled run still saves what was learned so far.
		log.Warn().Err(err).Msg("training interrupted")
	}

	summary := bot.Summarize()
	log.Info().
		Int("episodes", summary.Episodes).
		Float64("cumulativeReward", summary.CumulativeReward).
		Float64("recentMeanReward", summary.RecentMeanReward).
		Float64("recentBestReward", summary.RecentBestReward).
		Float64("epsilon", summary.Epsilon).
		Int("tableSize", summary.TableSize).
		Msg("training finished")

	if err := bot.SaveFile(*modelPath); err != nil {
		log.Fatal().Err(err).Msg("failed to save model")
	}
	log.Info().Str("path", *modelPath).Msg("model saved")
}

// validateFlags checks the run configuration before any component is built.
func validateFlags() error {
	if *collect == 0 && *pricesPath == "" {
		return fmt.Errorf("either -prices or -collect must be set")
	}
	if *collect > 0 {
		if err := utils.ValidateSymbol(*symbol); err != nil {
			return err
		}
		if *sampleInterval <= 0 {
			return fmt.Errorf("sample interval must be positive")
		}
	}
	if *episodes <= 0 {
		return fmt.Errorf("episodes must be positive")
	}
	if *modelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}
	return nil
}

// loadSeries obtains the training price series from the configured source:
// live collection from the Binance trade stream, or a JSON file.
func loadSeries(ctx context.Context) (model.PriceSeries, error) {
	if *collect == 0 {
		return prices.LoadFile(*pricesPath)
	}

	connector, err := exchange.NewBinanceConnector(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Binance connector: %w", err)
	}

	collector, err := prices.NewCollector(connector, time.Duration(*sampleInterval)*time.Second)
	if err != nil {
		return nil, err
	}

	series, err := collector.Collect(ctx, *symbol, *collect)
	if err != nil {
		return nil, err
	}

	if *savePrices != "" {
		if err := prices.SaveFile(*savePrices, series); err != nil {
			log.Warn().Err(err).Str("path", *savePrices).Msg("failed to save collected prices")
		} else {
			log.Info().Str("path", *savePrices).Msg("collected prices saved")
		}
	}

	return series, nil
}
