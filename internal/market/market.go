// Package market implements the trading simulation environment.
//
// The Market walks a fixed historical price series and turns agent actions
// into balance/position transitions plus a scalar reward. It is the
// environment half of the simulator: the agent observes and acts, the market
// applies the trade, charges fees and advances the clock.
//
// All monetary state is held as decimal.Decimal so repeated fee and notional
// arithmetic never accumulates floating-point drift. Observations handed to
// the learner are converted to float64 at the boundary.
package market

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"upbitquant/internal/model"
)

var (
	// ErrInvalidConfig indicates invalid construction parameters. It is only
	// returned by New, never by Step.
	ErrInvalidConfig = errors.New("invalid market configuration")

	// ErrInvalidAction indicates a malformed action. The offending Step call
	// is rejected and market state is left unchanged.
	ErrInvalidAction = errors.New("invalid action")
)

// rewardScale converts executed trade notional into the learning reward.
// A trade of notional N yields reward N*0.01, a bounded activity signal
// instead of highly variable profit swings.
var rewardScale = decimal.NewFromFloat(0.01)

// Config holds the market construction parameters. All values are validated
// once in New; Step never re-validates.
type Config struct {
	// InitialBalance is the quote-currency balance at every reset.
	InitialBalance decimal.Decimal

	// MaxBuy caps the asset amount acquired in a single buy.
	MaxBuy decimal.Decimal

	// MaxSell caps the asset amount liquidated in a single sell.
	MaxSell decimal.Decimal

	// FeeRate is the proportional trading fee (0.0005 = 0.05%).
	FeeRate decimal.Decimal
}

// DefaultConfig returns the standard simulation parameters: 10k starting
// balance, 100-unit trade caps, 5bp fee.
func DefaultConfig() Config {
	return Config{
		InitialBalance: decimal.NewFromInt(10000),
		MaxBuy:         decimal.NewFromInt(100),
		MaxSell:        decimal.NewFromInt(100),
		FeeRate:        decimal.NewFromFloat(0.0005),
	}
}

func (c Config) validate() error {
	if c.InitialBalance.Sign() <= 0 {
		return fmt.Errorf("initial balance must be positive, got %s", c.InitialBalance)
	}
	if c.MaxBuy.Sign() <= 0 {
		return fmt.Errorf("max buy must be positive, got %s", c.MaxBuy)
	}
	if c.MaxSell.Sign() <= 0 {
		return fmt.Errorf("max sell must be positive, got %s", c.MaxSell)
	}
	if c.FeeRate.Sign() < 0 {
		return fmt.Errorf("fee rate must be non-negative, got %s", c.FeeRate)
	}
	return nil
}

// StepInfo carries auxiliary per-step data alongside the observation and
// reward. It is informational only; nothing in the learning loop depends
// on it.
type StepInfo struct {
	TotalValue    decimal.Decimal // balance + position valued at the new price
	TotalTrades   int
	TotalFees     decimal.Decimal
	TradeExecuted bool
	ActionType    model.ActionType
	Amount        decimal.Decimal
}

// Market simulates trading over an immutable price series.
//
// The zero value is not usable; construct with New. A Market is not safe for
// concurrent use: Step and Reset are strictly sequential within an episode.
// Independent episodes may run in parallel on separate Market instances.
type Market struct {
	prices model.PriceSeries
	cfg    Config

	balance     decimal.Decimal
	position    decimal.Decimal
	stepIndex   int
	totalTrades int
	totalFees   decimal.Decimal
}

// New validates the price series and configuration and returns a Market
// positioned at the start of the series. Validation happens exactly once
// here; a constructed Market never fails during stepping.
func New(prices model.PriceSeries, cfg Config) (*Market, error) {
	if err := prices.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	m := &Market{prices: prices, cfg: cfg}
	m.Reset()

	log.Debug().
		Int("prices", len(prices)).
		Str("initialBalance", cfg.InitialBalance.String()).
		Str("feeRate", cfg.FeeRate.String()).
		Msg("market initialized")

	return m, nil
}

// Reset restores the market to its initial state and returns the first
// observation: full balance, no position, at the first price.
func (m *Market) Reset() model.Observation {
	m.balance = m.cfg.InitialBalance
	m.position = decimal.Zero
	m.stepIndex = 0
	m.totalTrades = 0
	m.totalFees = decimal.Zero

	return model.Observation{
		m.balance.InexactFloat64(),
		0,
		0,
		m.prices[0].InexactFloat64(),
	}
}

// Step applies one action at the current price, advances the step index and
// reports the resulting observation, reward and termination flag.
//
// A negative amount is rejected with ErrInvalidAction and leaves the market
// untouched. Buy and sell amounts are clamped to what the balance or
// position affords, so balance and position can never go negative. Actions
// with no executable quantity degrade to a hold.
func (m *Market) Step(action model.Action) (model.Observation, float64, bool, StepInfo, error) {
	if action.Amount.Sign() < 0 {
		return model.Observation{}, 0, false, StepInfo{},
			fmt.Errorf("%w: negative amount %s", ErrInvalidAction, action.Amount)
	}
	if !action.Type.Valid() {
		return model.Observation{}, 0, false, StepInfo{},
			fmt.Errorf("%w: unknown action type %d", ErrInvalidAction, int(action.Type))
	}

	price := m.prices[m.stepIndex]

	reward := decimal.Zero
	executed := false

	switch {
	case action.Type == model.Buy && m.balance.Sign() > 0:
		reward, executed = m.executeBuy(action.Amount, price)
	case action.Type == model.Sell && m.position.Sign() > 0:
		reward, executed = m.executeSell(action.Amount, price)
	}

	m.stepIndex++
	done := m.isDone()

	// Value the position at the new step's price, clamped so the terminal
	// step never reads past the series.
	markPrice := m.prices[min(m.stepIndex, len(m.prices)-1)]
	assetValue := m.position.Mul(markPrice)

	obs := model.Observation{
		m.balance.InexactFloat64(),
		assetValue.InexactFloat64(),
		m.position.InexactFloat64(),
		markPrice.InexactFloat64(),
	}

	info := StepInfo{
		TotalValue:    m.balance.Add(assetValue),
		TotalTrades:   m.totalTrades,
		TotalFees:     m.totalFees,
		TradeExecuted: executed,
		ActionType:    action.Type,
		Amount:        action.Amount,
	}

	log.Debug().
		Int("step", m.stepIndex).
		Str("balance", m.balance.StringFixed(2)).
		Str("position", m.position.String()).
		Str("reward", reward.String()).
		Bool("done", done).
		Msg("market step")

	return obs, reward.InexactFloat64(), done, info, nil
}

// executeBuy converts balance into position at the given price.
//
// The executable amount is the smallest of: the requested amount, what the
// balance can buy, and the per-trade cap. If the fee would push the total
// cost past the balance, the amount is clamped down to what the balance
// affords including the fee.
func (m *Market) executeBuy(amount, price decimal.Decimal) (decimal.Decimal, bool) {
	buyable := decimal.Min(amount, m.balance.Div(price), m.cfg.MaxBuy)
	if buyable.Sign() <= 0 {
		return decimal.Zero, false
	}

	// Clamp so cost+fee never exceeds balance. The quotient is truncated,
	// not rounded: rounding up would overdraw the balance by a hair.
	unitCost := price.Mul(decimal.NewFromInt(1).Add(m.cfg.FeeRate))
	if buyable.Mul(unitCost).GreaterThan(m.balance) {
		buyable = m.balance.DivRound(unitCost, 2*int32(decimal.DivisionPrecision)).
			RoundDown(int32(decimal.DivisionPrecision))
	}
	if buyable.Sign() <= 0 {
		return decimal.Zero, false
	}

	cost := buyable.Mul(price)
	fee := cost.Mul(m.cfg.FeeRate)

	m.balance = m.balance.Sub(cost).Sub(fee)
	m.position = m.position.Add(buyable)
	m.totalTrades++
	m.totalFees = m.totalFees.Add(fee)

	return cost.Mul(rewardScale), true
}

// executeSell converts position back into balance at the given price, capped
// by the held position and the per-trade limit.
func (m *Market) executeSell(amount, price decimal.Decimal) (decimal.Decimal, bool) {
	sellable := decimal.Min(amount, m.position, m.cfg.MaxSell)
	if sellable.Sign() <= 0 {
		return decimal.Zero, false
	}

	revenue := sellable.Mul(price)
	fee := revenue.Mul(m.cfg.FeeRate)
	net := revenue.Sub(fee)

	m.balance = m.balance.Add(net)
	m.position = m.position.Sub(sellable)
	m.totalTrades++
	m.totalFees = m.totalFees.Add(fee)

	return net.Mul(rewardScale), true
}

// isDone reports episode termination: the balance is exhausted or the series
// has been walked to its last price.
func (m *Market) isDone() bool {
	return m.balance.Sign() <= 0 || m.stepIndex >= len(m.prices)-1
}

// Balance returns the current quote-currency balance.
func (m *Market) Balance() decimal.Decimal { return m.balance }

// Position returns the currently held asset amount.
func (m *Market) Position() decimal.Decimal { return m.position }

// StepIndex returns the current position in the price series.
func (m *Market) StepIndex() int { return m.stepIndex }

// TotalTrades returns the number of executed trades since the last reset.
func (m *Market) TotalTrades() int { return m.totalTrades }

// TotalFees returns the fees accumulated since the last reset.
func (m *Market) TotalFees() decimal.Decimal { return m.totalFees }

// Len returns the length of the underlying price series.
func (m *Market) Len() int { return len(m.prices) }

// PerformanceMetrics summarizes an episode's economics against a
// buy-and-hold baseline over the same series.
type PerformanceMetrics struct {
	TotalReturn  decimal.Decimal // (final value - initial balance) / initial balance
	PriceReturn  decimal.Decimal // buy-and-hold return of the series itself
	ExcessReturn decimal.Decimal // TotalReturn - PriceReturn
	TotalValue   decimal.Decimal
	TotalTrades  int
	TotalFees    decimal.Decimal
	FeeRatio     decimal.Decimal // fees as a fraction of the initial balance
}

// Metrics computes performance metrics for the episode so far.
func (m *Market) Metrics() PerformanceMetrics {
	price := m.prices[min(m.stepIndex, len(m.prices)-1)]
	totalValue := m.balance.Add(m.position.Mul(price))

	totalReturn := totalValue.Sub(m.cfg.InitialBalance).Div(m.cfg.InitialBalance)
	priceReturn := price.Sub(m.prices[0]).Div(m.prices[0])

	return PerformanceMetrics{
		TotalReturn:  totalReturn,
		PriceReturn:  priceReturn,
		ExcessReturn: totalReturn.Sub(priceReturn),
		TotalValue:   totalValue,
		TotalTrades:  m.totalTrades,
		TotalFees:    m.totalFees,
		FeeRatio:     m.totalFees.Div(m.cfg.InitialBalance),
	}
}
