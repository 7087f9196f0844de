package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/logger"
	"github.com/dexkeep/keeperbot/internal/wsconn"
)

const (
	tracerName = "feed"
	meterName  = "feed"

	// App-level keep-alive; the transport pings separately.
	keepAliveInterval = 30 * time.Second
)

// ClientConfig holds configuration for the feed WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL
	Symbols      []string      // Symbols to subscribe, e.g. "WETHUSD"
	ReadTimeout  time.Duration // Read timeout
	WriteTimeout time.Duration // Write timeout
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(url string, symbols []string) ClientConfig {
	return ClientConfig{
		URL:          url,
		Symbols:      symbols,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// clientMetrics holds OTEL metric instruments.
type clientMetrics struct {
	messagesReceived metric.Int64Counter
	ticksReceived    metric.Int64Counter
	parseErrors      metric.Int64Counter
	resubscribes     metric.Int64Counter
}

// Client is the feed WebSocket client.
type Client struct {
	config ClientConfig
	logger logger.LoggerInterface

	conn   *wsconn.Client
	connMu sync.RWMutex

	onTicker   func(*TickerEvent)
	handlersMu sync.RWMutex

	stopKeepAlive chan struct{}

	tracer  trace.Tracer
	metrics *clientMetrics

	running atomic.Bool
}

// NewClient creates a new feed WebSocket client.
func NewClient(cfg ClientConfig, log logger.LoggerInterface) (*Client, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("feed websocket url is required"))
	}
	for i, s := range cfg.Symbols {
		cfg.Symbols[i] = NormalizeSymbol(s)
	}

	c := &Client{
		config:        cfg,
		logger:        log,
		stopKeepAlive: make(chan struct{}),
		tracer:        otel.Tracer(tracerName),
	}

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.messagesReceived, err = meter.Int64Counter(
		"feed_messages_total",
		metric.WithDescription("Total messages received"),
	)
	if err != nil {
		return err
	}

	c.metrics.ticksReceived, err = meter.Int64Counter(
		"feed_ticks_total",
		metric.WithDescription("Total ticker updates received"),
	)
	if err != nil {
		return err
	}

	c.metrics.parseErrors, err = meter.Int64Counter(
		"feed_parse_errors_total",
		metric.WithDescription("Message parse errors"),
	)
	if err != nil {
		return err
	}

	c.metrics.resubscribes, err = meter.Int64Counter(
		"feed_resubscribes_total",
		metric.WithDescription("Subscription replays after reconnect"),
	)
	if err != nil {
		return err
	}

	return nil
}

// OnTicker registers a handler for ticker events.
func (c *Client) OnTicker(handler func(*TickerEvent)) {
	c.handlersMu.Lock()
	c.onTicker = handler
	c.handlersMu.Unlock()
}

// Connect establishes the WebSocket connection and subscribes to the
// configured symbols. The connection re-subscribes itself after every
// reconnect.
func (c *Client) Connect(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "feed.connect",
		trace.WithAttributes(attribute.StringSlice("symbols", c.config.Symbols)),
	)
	defer span.End()

	if len(c.config.Symbols) == 0 {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no feed symbols configured"))
	}

	wsCfg := wsconn.DefaultConfig(c.config.URL, "feed")
	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeWebSocketConnectionError, "failed to create wsconn")
	}

	conn.OnMessage(c.handleMessage)
	conn.OnStateChange(c.handleStateChange)

	if err := conn.Connect(ctx); err != nil {
		return apperror.Wrap(err, apperror.CodeWebSocketConnectionError, "failed to connect to feed")
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if err := c.subscribe(ctx); err != nil {
		return err
	}

	c.running.Store(true)
	go c.keepAlive()

	c.logger.Info(ctx, "feed client connected",
		"url", c.config.URL,
		"symbols", c.config.Symbols)

	return nil
}

// subscribe sends the subscription request for the configured symbols.
func (c *Client) subscribe(ctx context.Context) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithContext("not connected"))
	}

	req := WSRequest{Op: OpSubscribe, Symbols: c.config.Symbols}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	if err := conn.Send(ctx, data); err != nil {
		return apperror.Wrap(err, apperror.CodeWebSocketSendError, "failed to subscribe")
	}

	return nil
}

// handleStateChange replays the subscription once the transport has
// reconnected.
func (c *Client) handleStateChange(state wsconn.State, err error) {
	ctx := context.Background()

	if state == wsconn.StateReconnecting {
		c.logger.Warn(ctx, "feed connection lost", "error", err)
		return
	}
	if state != wsconn.StateConnected || !c.running.Load() {
		return
	}

	// First StateConnected fires during Connect, before running is set,
	// so this path only covers reconnects.
	go func() {
		if err := c.subscribe(ctx); err != nil {
			c.logger.Error(ctx, "feed resubscribe failed", "error", err)
			return
		}
		c.metrics.resubscribes.Add(ctx, 1)
		c.logger.Info(ctx, "feed resubscribed", "symbols", c.config.Symbols)
	}()
}

// handleMessage processes incoming WebSocket messages.
func (c *Client) handleMessage(ctx context.Context, data []byte) {
	c.metrics.messagesReceived.Add(ctx, 1)

	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.metrics.parseErrors.Add(ctx, 1)
		c.logger.Debug(ctx, "failed to parse feed message", "error", err)
		return
	}

	switch msg.Type {
	case MessageTypeTicker:
		var tick TickerEvent
		if err := json.Unmarshal(msg.Data, &tick); err != nil {
			c.metrics.parseErrors.Add(ctx, 1)
			c.logger.Debug(ctx, "failed to parse ticker", "error", err)
			return
		}
		tick.Symbol = NormalizeSymbol(tick.Symbol)
		c.metrics.ticksReceived.Add(ctx, 1)

		c.handlersMu.RLock()
		handler := c.onTicker
		c.handlersMu.RUnlock()
		if handler != nil {
			handler(&tick)
		}

	case MessageTypePong, MessageTypeAck:
		// control noise

	default:
		c.logger.Debug(ctx, "unknown feed message type", "type", msg.Type)
	}
}

// keepAlive sends periodic app-level pings.
func (c *Client) keepAlive() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := context.Background()

	for {
		select {
		case <-c.stopKeepAlive:
			return
		case <-ticker.C:
			if !c.running.Load() {
				return
			}

			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn != nil {
				data, _ := json.Marshal(WSRequest{Op: OpPing})
				if err := conn.Send(ctx, data); err != nil {
					c.logger.Warn(ctx, "feed keep-alive failed", "error", err)
				}
			}
		}
	}
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close closes the client connection.
func (c *Client) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	close(c.stopKeepAlive)

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
