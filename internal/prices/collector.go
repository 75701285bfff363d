// Package prices acquires the price series the market simulation runs on.
//
// Two sources are supported: sampling a live exchange trade stream at a
// fixed interval (the Collector), and loading a previously saved series
// from a JSON file. Either way the result is a validated model.PriceSeries
// handed to the market at construction time; the simulator core makes no
// assumption about freshness or transport.
package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"upbitquant/internal/model"
)

// TradeSource is the interface the collector consumes trade ticks from.
// Exchange connectors implement it.
type TradeSource interface {
	// SubscribeToTrades streams trade events for the given trading pairs.
	SubscribeToTrades(ctx context.Context, pairs []string) (<-chan model.TradeTick, error)
}

// Collector samples a live trade stream into a price series.
//
// Each sampling interval contributes at most one price: the last trade
// price observed within it. Intervals with no trades are skipped rather
// than padded, so the series only contains observed prices.
type Collector struct {
	source   TradeSource
	interval time.Duration
}

// NewCollector returns a collector sampling the source at the given
// interval.
func NewCollector(source TradeSource, interval time.Duration) (*Collector, error) {
	if source == nil {
		return nil, fmt.Errorf("trade source is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sampling interval must be positive, got %s", interval)
	}
	return &Collector{source: source, interval: interval}, nil
}

// Collect subscribes to the pair's trade stream and samples it until the
// requested number of prices has been gathered. It returns early with an
// error if the context is cancelled or the stream closes before enough
// samples arrive; any prices collected so far are returned alongside.
func (c *Collector) Collect(ctx context.Context, pair string, samples int) (model.PriceSeries, error) {
	if samples < 2 {
		return nil, fmt.Errorf("need at least 2 samples for a usable series, got %d", samples)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticks, err := c.source.SubscribeToTrades(ctx, []string{pair})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to trades: %w", err)
	}

	log.Info().
		Str("pair", pair).
		Dur("interval", c.interval).
		Int("samples", samples).
		Msg("collecting price series")

	series := make(model.PriceSeries, 0, samples)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var last *model.TradeTick

	for {
		select {
		case <-ctx.Done():
			return series, fmt.Errorf("collection aborted after %d/%d samples: %w", len(series), samples, ctx.Err())
		case <-ticker.C:
			if last == nil {
				continue // no trades this interval
			}
			series = append(series, last.Price)
			last = nil
			if len(series) == samples {
				log.Info().Str("pair", pair).Int("samples", samples).Msg("price series complete")
				return series, nil
			}
		case tick, ok := <-ticks:
			if !ok {
				return series, fmt.Errorf("trade stream closed after %d/%d samples", len(series), samples)
			}
			if tick.Pair != pair {
				continue
			}
			t := tick
			last = &t
		}
	}
}
