package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"upbitquant/internal/model"
	"upbitquant/internal/utils"
	"upbitquant/internal/websocket"
)

// defaultBinanceConfig provides sensible defaults for Binance connections.
var defaultBinanceConfig = ExchangeConfig{
	BaseURL:    "wss://stream.binance.com:9443",
	MaxSymbols: 10,
}

// BinanceConnector streams trade ticks from Binance over WebSocket.
//
// It converts Binance's combined-stream trade messages into normalized
// model.TradeTick values with precise decimal prices, which the price
// collector samples into training series.
type BinanceConnector struct {
	config   ExchangeConfig
	validate *validator.Validate
}

// streamMsg is the outer wrapper of a Binance combined-stream message:
//
//	{"stream": "btcusdt@trade", "data": {...trade payload...}}
type streamMsg struct {
	Stream string          `json:"stream" validate:"required"`
	Data   json.RawMessage `json:"data" validate:"required"`
}

// tradeMsg is the inner trade payload. Numeric values arrive as strings so
// precision survives JSON parsing; Time is Unix milliseconds.
type tradeMsg struct {
	Symbol   string `json:"s" validate:"required"`
	Price    string `json:"p" validate:"required,numeric"`
	Quantity string `json:"q" validate:"required,numeric"`
	Time     int64  `json:"T" validate:"required,gt=0"`
}

// NewBinanceConnector creates a connector with the given configuration.
// A nil configuration selects the defaults.
func NewBinanceConnector(cfg *ExchangeConfig) (*BinanceConnector, error) {
	if cfg == nil {
		cfg = &ExchangeConfig{}
	}
	cfg.withDefaults(defaultBinanceConfig)

	return &BinanceConnector{
		config:   *cfg,
		validate: validator.New(),
	}, nil
}

// SubscribeToTrades connects to Binance and streams trade ticks for the
// given trading pairs. The returned channel is closed when the connection
// drops or the context is cancelled.
func (bc *BinanceConnector) SubscribeToTrades(ctx context.Context, pairs []string) (<-chan model.TradeTick, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no trading pairs requested", ErrInvalidConfig)
	}
	if len(pairs) > bc.config.MaxSymbols {
		return nil, fmt.Errorf("%w: %d pairs requested, maximum %d", ErrInvalidConfig, len(pairs), bc.config.MaxSymbols)
	}

	streamURL, err := bc.buildStreamURL(pairs)
	if err != nil {
		return nil, err
	}

	client, err := websocket.NewClient(ctx, websocket.Config{
		Endpoint: streamURL,
		Handler:  bc.handleTradeMessage,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create Binance WebSocket client")
		return nil, err
	}

	return client.TickChan, nil
}

// buildStreamURL constructs the combined-stream URL:
// wss://stream.binance.com:9443/stream?streams=btcusdt@trade/ethusdt@trade
func (bc *BinanceConnector) buildStreamURL(pairs []string) (string, error) {
	streams := make([]string, 0, len(pairs))

	for _, s := range pairs {
		if err := utils.ValidateSymbol(s); err != nil {
			return "", err
		}
		streams = append(streams, fmt.Sprintf("%s@trade",
			strings.ToLower(strings.ReplaceAll(s, "-", ""))))
	}

	return fmt.Sprintf("%s/stream?streams=%s",
		bc.config.BaseURL, strings.Join(streams, "/")), nil
}

// handleTradeMessage parses one raw WebSocket message into a TradeTick and
// publishes it. Malformed or invalid payloads are rejected with an error
// and dropped by the caller; they never reach the tick channel.
func (bc *BinanceConnector) handleTradeMessage(raw []byte, ticks chan<- model.TradeTick) error {
	var m streamMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Error().Err(err).Msg("invalid stream wrapper JSON")
		return err
	}

	var t tradeMsg
	if err := json.Unmarshal(m.Data, &t); err != nil {
		log.Error().Err(err).Msg("invalid trade payload JSON")
		return err
	}

	if err := bc.validate.Struct(&t); err != nil {
		log.Warn().Err(err).Interface("trade", t).Msg("trade validation failed")
		return err
	}

	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		log.Error().Err(err).Str("price", t.Price).Msg("invalid trade price")
		return err
	}

	quantity, err := decimal.NewFromString(t.Quantity)
	if err != nil {
		log.Error().Err(err).Str("quantity", t.Quantity).Msg("invalid trade quantity")
		return err
	}

	ticks <- model.TradeTick{
		Pair:      normalizeSymbol(t.Symbol),
		Price:     price,
		Quantity:  quantity,
		Timestamp: time.UnixMilli(t.Time),
	}

	return nil
}

// normalizeSymbol converts Binance's concatenated symbol format ("BTCUSDT")
// to the standard BASE-QUOTE form ("BTC-USDT") by matching a known quote
// asset suffix.
func normalizeSymbol(symbol string) string {
	upper := strings.ToUpper(symbol)

	for _, quote := range []string{"USDT", "KRW", "BTC", "ETH"} {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return upper[:len(upper)-len(quote)] + "-" + quote
		}
	}

	return upper
}
