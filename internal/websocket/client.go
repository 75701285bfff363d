// Package websocket provides the WebSocket client used to stream trade data
// from exchanges.
//
// The client manages the full connection lifecycle: dialing, a read loop
// that hands raw messages to a configurable handler, a keepalive ping loop,
// and graceful close coordination. Consumers receive parsed trade ticks on
// a buffered channel and can watch for disconnects and terminal errors.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"upbitquant/internal/model"
)

const (
	// defaultPingPeriod is the interval between keepalive pings.
	defaultPingPeriod = 15 * time.Second

	// defaultSendTimeout bounds WebSocket write operations.
	defaultSendTimeout = 5 * time.Second

	// defaultReadLimit caps incoming message size at 1MB.
	defaultReadLimit = 1 << 20

	// defaultHandshakeTimeout bounds the connection handshake.
	defaultHandshakeTimeout = 10 * time.Second
)

// ErrClientShuttingDown reports that the client is closing down.
var ErrClientShuttingDown = errors.New("client is shutting down")

// Config defines settings for the WebSocket client.
type Config struct {
	// Endpoint is the WebSocket URL to connect to. Required.
	Endpoint string

	// Handler is called for each incoming message with the raw payload and
	// the tick channel to publish parsed trades on. Required.
	Handler func([]byte, chan<- model.TradeTick) error

	// TLSInsecureSkip disables TLS certificate verification.
	TLSInsecureSkip bool

	// PingPeriod overrides the keepalive ping interval.
	PingPeriod time.Duration

	// SendTimeout overrides the write deadline.
	SendTimeout time.Duration

	// SubscriptionMessages are sent immediately after connecting.
	SubscriptionMessages [][]byte
}

// Client wraps a websocket.Conn with lifecycle and message handling logic.
type Client struct {
	conn atomic.Value // stores *websocket.Conn

	// TickChan delivers parsed trade ticks to consumers. Closed when the
	// read loop exits.
	TickChan chan model.TradeTick

	disconnect chan struct{}
	errChan    chan error
	cfg        *Config
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
	wg         sync.WaitGroup
}

// NewClient validates the configuration, dials the endpoint, sends any
// subscription messages and starts the background read and ping loops.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("message handler is required")
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	ctx, cancel := context.WithCancel(ctx)

	c := &Client{
		cfg:        &cfg,
		ctx:        ctx,
		cancel:     cancel,
		disconnect: make(chan struct{}),
		errChan:    make(chan error, 1),
		TickChan:   make(chan model.TradeTick, 1000),
	}

	if err := c.run(cfg.SubscriptionMessages); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start client: %w", err)
	}

	return c, nil
}

// run establishes the connection and starts the background goroutines.
func (c *Client) run(subMsgs [][]byte) error {
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()
	logger.Info().Msg("starting websocket client")

	conn, err := c.dial(c.ctx)
	if err != nil {
		return fmt.Errorf("initial dial failed: %w", err)
	}

	defer func() {
		if err != nil {
			if closeErr := conn.Close(); closeErr != nil {
				logger.Warn().Err(closeErr).Msg("error closing connection during cleanup")
			}
		}
	}()

	c.conn.Store(conn)

	conn.SetReadLimit(defaultReadLimit)
	conn.SetPongHandler(func(string) error {
		deadline := time.Now().Add(c.cfg.PingPeriod * 2)
		if err := conn.SetReadDeadline(deadline); err != nil {
			logger.Warn().Err(err).Msg("failed to set read deadline in pong handler")
		}
		return nil
	})

	for _, msg := range subMsgs {
		if err = conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Error().Err(err).Msg("subscription error")
			return err
		}
	}

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.pingLoop()
	}()
	go func() {
		defer c.wg.Done()
		c.shutdownListener()
	}()

	return nil
}

// readLoop reads messages until the connection drops or the context is
// cancelled, delegating each payload to the configured handler. Handler
// panics are contained so a single bad message cannot take the client down.
func (c *Client) readLoop() {
	conn := c.conn.Load().(*websocket.Conn)
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()

	defer func() {
		logger.Info().Msg("read loop exiting")
		close(c.disconnect)
		close(c.TickChan)

		select {
		case c.errChan <- ErrClientShuttingDown:
		default:
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info().Err(err).Msg("websocket closed normally")
				} else if websocket.IsUnexpectedCloseError(err) {
					logger.Warn().Err(err).Msg("unexpected websocket closure")
				} else {
					logger.Error().Err(err).Msg("read error")
				}

				select {
				case c.errChan <- err:
				default:
				}
				return
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error().Any("recover", r).Msg("panic in message handler")
					}
				}()

				if err := c.cfg.Handler(data, c.TickChan); err != nil {
					logger.Error().Err(err).Msg("error handling trade message")
				}
			}()
		}
	}
}

// pingLoop sends periodic pings to detect dead connections.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()

	for {
		select {
		case <-ticker.C:
			connVal := c.conn.Load()
			if connVal == nil {
				continue
			}
			conn := connVal.(*websocket.Conn)

			deadline := time.Now().Add(c.cfg.SendTimeout)
			if err := conn.SetWriteDeadline(deadline); err != nil {
				logger.Warn().Err(err).Msg("failed to set write deadline")
				continue
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn().Err(err).Msg("ping error")
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// shutdownListener closes the client when the context is cancelled.
func (c *Client) shutdownListener() {
	<-c.ctx.Done()
	c.Close()
}

// Close gracefully shuts down the client. Safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() {
		logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()
		logger.Info().Msg("closing websocket client")

		c.cancel()

		if conn := c.conn.Load(); conn != nil {
			if ws, ok := conn.(*websocket.Conn); ok {
				if err := ws.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				); err != nil {
					logger.Warn().Err(err).Msg("failed to send close frame")
				}
				if err := ws.Close(); err != nil {
					logger.Warn().Err(err).Msg("error closing websocket connection")
				}
			}
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("timeout waiting for goroutines to complete")
		}
	})
}

// dial establishes the WebSocket connection.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.cfg.TLSInsecureSkip},
		HandshakeTimeout: defaultHandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.Endpoint, make(http.Header))
	if err != nil {
		if resp != nil {
			log.Error().Err(err).Int("statusCode", resp.StatusCode).
				Str("endpoint", c.cfg.Endpoint).Msg("websocket connection failed")
		} else {
			log.Error().Err(err).Str("endpoint", c.cfg.Endpoint).Msg("websocket connection failed")
		}
		return nil, err
	}

	return conn, nil
}

// DisconnectChan returns a channel closed when the connection is lost.
func (c *Client) DisconnectChan() <-chan struct{} {
	return c.disconnect
}

// ErrChan returns a channel carrying the terminal read error, if any.
func (c *Client) ErrChan() <-chan error {
	return c.errChan
}
