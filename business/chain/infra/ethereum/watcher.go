package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/business/chain/app"
	"github.com/dexkeep/keeperbot/business/chain/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/circuitbreaker"
	"github.com/dexkeep/keeperbot/internal/logger"
)

var _ app.BlockWatcher = (*Watcher)(nil)

// WatcherConfig holds configuration for the block watcher.
type WatcherConfig struct {
	WSURL          string        // WebSocket endpoint (primary)
	HTTPURL        string        // HTTP endpoint (fallback)
	PollInterval   time.Duration // polling interval for HTTP fallback
	ReconnectDelay time.Duration // delay before reconnecting WS
	BufferSize     int           // block channel buffer size
}

// DefaultWatcherConfig returns sensible defaults.
func DefaultWatcherConfig(wsURL, httpURL string) WatcherConfig {
	return WatcherConfig{
		WSURL:          wsURL,
		HTTPURL:        httpURL,
		PollInterval:   12 * time.Second, // ~1 block time
		ReconnectDelay: 5 * time.Second,
		BufferSize:     16,
	}
}

type watcherMetrics struct {
	blocksReceived   metric.Int64Counter
	subscribeErrors  metric.Int64Counter
	connectionState  metric.Int64Gauge
	blockLatency     metric.Float64Histogram
	httpFallbackUsed metric.Int64Counter
}

// Watcher streams new block headers, preferring a WebSocket
// subscription and falling back to HTTP polling when it drops.
type Watcher struct {
	config WatcherConfig
	logger logger.LoggerInterface

	wsClient   *ethclient.Client
	httpClient *ethclient.Client
	clientMu   sync.RWMutex

	state      domain.ConnectionState
	stateMu    sync.RWMutex
	usingHTTP  atomic.Bool
	lastBlock  atomic.Uint64
	reconnects atomic.Int32

	blocks  chan *domain.Block
	done    chan struct{}
	closeMu sync.Mutex
	closed  atomic.Bool

	wsCB   *circuitbreaker.CircuitBreaker[*types.Header]
	httpCB *circuitbreaker.CircuitBreaker[*types.Header]

	tracer  trace.Tracer
	metrics *watcherMetrics
}

// NewWatcher creates a block watcher.
func NewWatcher(cfg WatcherConfig, log logger.LoggerInterface) (*Watcher, error) {
	w := &Watcher{
		config: cfg,
		logger: log,
		state:  domain.StateDisconnected,
		blocks: make(chan *domain.Block, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}

	if err := w.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	w.wsCB = circuitbreaker.New[*types.Header](circuitbreaker.DefaultConfig("watcher-ws"))
	w.httpCB = circuitbreaker.New[*types.Header](circuitbreaker.DefaultConfig("watcher-http"))

	return w, nil
}

func (w *Watcher) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	w.metrics = &watcherMetrics{}

	w.metrics.blocksReceived, err = meter.Int64Counter(
		"chain_blocks_received_total",
		metric.WithDescription("Total blocks received"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	w.metrics.subscribeErrors, err = meter.Int64Counter(
		"chain_subscribe_errors_total",
		metric.WithDescription("Block subscription errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	w.metrics.connectionState, err = meter.Int64Gauge(
		"chain_connection_state",
		metric.WithDescription("Connection state (0=disconnected 1=connecting 2=connected 3=reconnecting)"),
	)
	if err != nil {
		return err
	}

	w.metrics.blockLatency, err = meter.Float64Histogram(
		"chain_block_latency_ms",
		metric.WithDescription("Delay between block timestamp and receipt"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	w.metrics.httpFallbackUsed, err = meter.Int64Counter(
		"chain_http_fallback_total",
		metric.WithDescription("Times the HTTP fallback was engaged"),
		metric.WithUnit("{switch}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Subscribe starts listening for new blocks and returns a channel.
func (w *Watcher) Subscribe(ctx context.Context) (<-chan *domain.Block, error) {
	ctx, span := w.tracer.Start(ctx, "watcher.subscribe",
		trace.WithAttributes(
			attribute.String("ws_url", w.config.WSURL),
			attribute.String("http_url", w.config.HTTPURL),
		),
	)
	defer span.End()

	if w.closed.Load() {
		err := errors.New("watcher is closed")
		span.RecordError(err)
		return nil, err
	}

	w.setState(domain.StateConnecting)

	if err := w.connectWS(ctx); err != nil {
		w.logger.Warn(ctx, "ws connection failed, trying http fallback", "error", err)
		span.AddEvent("ws_failed_trying_http")

		if err := w.connectHTTP(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "both connections failed")
			w.setState(domain.StateDisconnected)
			return nil, apperror.New(apperror.CodeChainConnectionFailed,
				apperror.WithCause(err),
				apperror.WithContext("failed to connect via WS and HTTP"))
		}

		w.usingHTTP.Store(true)
		go w.runHTTPPoller(ctx)
	} else {
		go w.runWSSubscription(ctx)
	}

	w.setState(domain.StateConnected)
	span.SetStatus(codes.Ok, "subscribed")

	return w.blocks, nil
}

func (w *Watcher) connectWS(ctx context.Context) error {
	if w.config.WSURL == "" {
		return errors.New("ws url not configured")
	}

	client, err := ethclient.DialContext(ctx, w.config.WSURL)
	if err != nil {
		return fmt.Errorf("dial ws: %w", err)
	}

	w.clientMu.Lock()
	w.wsClient = client
	w.clientMu.Unlock()
	return nil
}

func (w *Watcher) connectHTTP(ctx context.Context) error {
	if w.config.HTTPURL == "" {
		return errors.New("http url not configured")
	}

	client, err := ethclient.DialContext(ctx, w.config.HTTPURL)
	if err != nil {
		return fmt.Errorf("dial http: %w", err)
	}

	w.clientMu.Lock()
	w.httpClient = client
	w.clientMu.Unlock()
	return nil
}

func (w *Watcher) runWSSubscription(ctx context.Context) {
	headers := make(chan *types.Header, w.config.BufferSize)

	select {
	case <-w.done:
		return
	case <-ctx.Done():
		return
	default:
	}

	w.clientMu.RLock()
	client := w.wsClient
	w.clientMu.RUnlock()

	if client == nil {
		w.handleWSDisconnect(ctx)
		return
	}

	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		w.logger.Error(ctx, "subscribe new head failed", "error", err)
		w.metrics.subscribeErrors.Add(ctx, 1)
		w.handleWSDisconnect(ctx)
		return
	}

	w.logger.Info(ctx, "subscribed to new heads via ws")
	w.processWSHeaders(ctx, headers, sub)

	sub.Unsubscribe()
	w.handleWSDisconnect(ctx)
}

func (w *Watcher) processWSHeaders(ctx context.Context, headers <-chan *types.Header, sub interface{ Err() <-chan error }) {
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				w.logger.Error(ctx, "subscription error", "error", err)
				w.metrics.subscribeErrors.Add(ctx, 1)
			}
			return
		case header := <-headers:
			if header == nil {
				continue
			}
			w.processHeader(ctx, header, false)
		}
	}
}

// handleWSDisconnect retries WS once after a delay, then falls back to
// HTTP polling rather than going dark.
func (w *Watcher) handleWSDisconnect(ctx context.Context) {
	if w.closed.Load() {
		return
	}

	w.setState(domain.StateReconnecting)
	w.reconnects.Add(1)

	select {
	case <-w.done:
		return
	case <-time.After(w.config.ReconnectDelay):
	}

	if w.closed.Load() {
		return
	}

	if err := w.connectWS(ctx); err != nil {
		w.logger.Warn(ctx, "ws reconnect failed, switching to http", "error", err)

		w.clientMu.RLock()
		httpReady := w.httpClient != nil
		w.clientMu.RUnlock()

		if !httpReady {
			if err := w.connectHTTP(ctx); err != nil {
				w.logger.Error(ctx, "http fallback connection failed", "error", err)
				w.setState(domain.StateDisconnected)
				return
			}
		}

		w.usingHTTP.Store(true)
		w.metrics.httpFallbackUsed.Add(ctx, 1)
		w.setState(domain.StateConnected)
		go w.runHTTPPoller(ctx)
		return
	}

	w.usingHTTP.Store(false)
	w.setState(domain.StateConnected)
	go w.runWSSubscription(ctx)
}

func (w *Watcher) runHTTPPoller(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.logger.Info(ctx, "starting http polling fallback", "interval", w.config.PollInterval)

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollLatestBlock(ctx)
		}
	}
}

func (w *Watcher) pollLatestBlock(ctx context.Context) {
	ctx, span := w.tracer.Start(ctx, "watcher.poll_block")
	defer span.End()

	w.clientMu.RLock()
	client := w.httpClient
	w.clientMu.RUnlock()

	if client == nil {
		span.AddEvent("no_http_client")
		return
	}

	header, err := w.httpCB.Execute(func() (*types.Header, error) {
		return client.HeaderByNumber(ctx, nil) // nil = latest
	})
	if err != nil {
		span.RecordError(err)
		w.logger.Error(ctx, "http poll failed", "error", err)
		w.metrics.subscribeErrors.Add(ctx, 1)
		return
	}

	if header.Number.Uint64() <= w.lastBlock.Load() {
		span.AddEvent("duplicate_block")
		return
	}

	w.processHeader(ctx, header, true)
	span.SetStatus(codes.Ok, "polled")
}

func (w *Watcher) processHeader(ctx context.Context, header *types.Header, fromHTTP bool) {
	ctx, span := w.tracer.Start(ctx, "watcher.process_header",
		trace.WithAttributes(
			attribute.Int64("block_number", int64(header.Number.Uint64())),
			attribute.Bool("from_http", fromHTTP),
		),
	)
	defer span.End()

	block := headerToBlock(header)

	latency := time.Since(block.Timestamp)
	w.metrics.blockLatency.Record(ctx, float64(latency.Milliseconds()))
	w.lastBlock.Store(block.Number)

	select {
	case w.blocks <- block:
		w.metrics.blocksReceived.Add(ctx, 1)
		w.logger.Debug(ctx, "block received",
			"number", block.Number,
			"hash", block.Hash.Hex()[:10],
			"latency_ms", latency.Milliseconds())
	default:
		span.AddEvent("block_dropped_buffer_full")
		w.logger.Warn(ctx, "block dropped, buffer full", "number", block.Number)
	}

	span.SetStatus(codes.Ok, "processed")
}

func headerToBlock(header *types.Header) *domain.Block {
	return &domain.Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		GasLimit:   header.GasLimit,
		GasUsed:    header.GasUsed,
		BaseFee:    header.BaseFee,
	}
}

// LatestBlock retrieves the most recent block.
func (w *Watcher) LatestBlock(ctx context.Context) (*domain.Block, error) {
	ctx, span := w.tracer.Start(ctx, "watcher.latest_block")
	defer span.End()

	w.clientMu.RLock()
	wsClient := w.wsClient
	httpClient := w.httpClient
	w.clientMu.RUnlock()

	var header *types.Header
	var err error

	if wsClient != nil && !w.usingHTTP.Load() {
		header, err = w.wsCB.Execute(func() (*types.Header, error) {
			return wsClient.HeaderByNumber(ctx, nil)
		})
	}

	if header == nil && httpClient != nil {
		header, err = w.httpCB.Execute(func() (*types.Header, error) {
			return httpClient.HeaderByNumber(ctx, nil)
		})
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, apperror.Wrap(err, apperror.CodeChainRead, "latest block")
	}

	if header == nil {
		span.SetStatus(codes.Error, "no client")
		return nil, apperror.New(apperror.CodeChainConnectionFailed,
			apperror.WithContext("no chain client connected"))
	}

	span.SetStatus(codes.Ok, "fetched")
	return headerToBlock(header), nil
}

// State returns the current connection state.
func (w *Watcher) State() domain.ConnectionState {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// Status returns detailed connection status.
func (w *Watcher) Status() domain.ConnectionStatus {
	return domain.ConnectionStatus{
		State:      w.State(),
		LastBlock:  w.lastBlock.Load(),
		LastUpdate: time.Now(),
		Reconnects: int(w.reconnects.Load()),
		UsingHTTP:  w.usingHTTP.Load(),
	}
}

// Close gracefully closes the watcher.
func (w *Watcher) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()

	if w.closed.Load() {
		return nil
	}

	w.logger.Info(context.Background(), "closing block watcher")

	w.closed.Store(true)
	close(w.done)

	w.clientMu.Lock()
	if w.wsClient != nil {
		w.wsClient.Close()
		w.wsClient = nil
	}
	if w.httpClient != nil {
		w.httpClient.Close()
		w.httpClient = nil
	}
	w.clientMu.Unlock()

	close(w.blocks)
	w.setState(domain.StateDisconnected)

	return nil
}

func (w *Watcher) setState(state domain.ConnectionState) {
	w.stateMu.Lock()
	w.state = state
	w.stateMu.Unlock()

	stateValue := int64(0)
	switch state {
	case domain.StateDisconnected:
		stateValue = 0
	case domain.StateConnecting:
		stateValue = 1
	case domain.StateConnected:
		stateValue = 2
	case domain.StateReconnecting:
		stateValue = 3
	}

	w.metrics.connectionState.Record(context.Background(), stateValue)
}
