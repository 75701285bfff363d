/*
Package main implements the evaluation CLI for trained agent snapshots.

The backtester loads a previously trained agent snapshot and a price series,
replays the agent against the market simulation without learning, and
reports the mean and standard deviation of episode reward together with the
market's performance metrics against a buy-and-hold baseline.

Usage:

	go run main.go -model=model.json -prices=prices.json -episodes=100
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
	"upbitquant/internal/market"
	"upbitquant/internal/model"
	"upbitquant/internal/prices"
	"upbitquant/internal/trainer"
)

// Command-line flags for configuring the evaluation run
var (
	modelPath  = flag.String("model", "model.json", "Path to the trained agent snapshot")
	pricesPath = flag.String("prices", "", "Path to a JSON price series file")
	episodes   = flag.Int("episodes", 100, "Number of evaluation episodes")

	// Market parameters (should match the training configuration)
	balance = flag.Float64("balance", 10000, "Initial quote-currency balance")
	maxBuy  = flag.Float64("max-buy", 100, "Maximum asset amount per buy")
	maxSell = flag.Float64("max-sell", 100, "Maximum asset amount per sell")
	feeRate = flag.Float64("fee", 0.0005, "Proportional trading fee")
)

// main loads the snapshot and price series, evaluates the agent without
// learning and logs the aggregate results.
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

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	series, err := prices.LoadFile(*pricesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load price series")
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

	bot, err := agent.New(model.ActionCount, agent.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create agent")
	}
	if err := bot.LoadFile(*modelPath); err != nil {
		log.Fatal().Err(err).Str("path", *modelPath).Msg("failed to load model snapshot")
	}

	log.Info().
		Str("model", *modelPath).
		Int("prices", len(series)).
		Int("episodes", *episodes).
		Int("tableSize", bot.TableSize()).
		Float64("epsilon", bot.Epsilon()).
		Msg("evaluation starting")

	mean, std, err := trainer.Evaluate(ctx, mkt, bot, *episodes)
	if err != nil {
		log.Fatal().Err(err).Msg("evaluation failed")
	}

	perf := mkt.Metrics()
	log.Info().
		Float64("meanReward", mean).
		Float64("stdReward", std).
		Str("totalReturn", perf.TotalReturn.StringFixed(4)).
		Str("priceReturn", perf.PriceReturn.StringFixed(4)).
		Str("excessReturn", perf.ExcessReturn.StringFixed(4)).
		Str("totalValue", perf.TotalValue.StringFixed(2)).
		Int("totalTrades", perf.TotalTrades).
		Str("totalFees", perf.TotalFees.StringFixed(2)).
		Msg("evaluation complete")
}

// validateFlags checks the run configuration before any component is built.
func validateFlags() error {
	if *modelPath == "" {
		return fmt.Errorf("model path cannot be empty")
	}
	if *pricesPath == "" {
		return fmt.Errorf("prices path cannot be empty")
	}
	if *episodes <= 0 {
		return fmt.Errorf("episodes must be positive")
	}
	return nil
}
