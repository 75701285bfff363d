// Package exchange provides the exchange connector used to acquire live
// price data for training series.
//
// The simulator itself only needs an ordered sequence of prices; this
// package is the thin acquisition collaborator that produces the raw trade
// stream those prices are sampled from.
package exchange

import (
	"errors"
)

// ErrInvalidConfig indicates that the provided ExchangeConfig contains
// invalid values.
var ErrInvalidConfig = errors.New("invalid exchange configuration")

// ExchangeConfig holds common connector parameters.
type ExchangeConfig struct {
	// BaseURL is the WebSocket endpoint URL for the exchange API.
	BaseURL string

	// MaxSymbols caps how many trading pairs one connection may subscribe to.
	MaxSymbols int
}

// withDefaults fills unset fields from the connector's default configuration.
func (c *ExchangeConfig) withDefaults(def ExchangeConfig) {
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.MaxSymbols <= 0 {
		c.MaxSymbols = def.MaxSymbols
	}
}
