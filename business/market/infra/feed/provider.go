package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/business/market/app"
	"github.com/dexkeep/keeperbot/business/market/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/logger"
)

// Ensure Provider implements FeedProvider.
var _ app.FeedProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the feed provider.
type ProviderConfig struct {
	WebSocketURL   string        // stream URL (empty = REST only)
	HTTPURL        string        // REST base URL (empty = stream only)
	Symbols        []string      // symbols to track, e.g. "WETHUSD"
	StaleTimeout   time.Duration // how long before a tick is considered stale
	EnableFallback bool          // allow REST reads when the stream is stale
}

// DefaultProviderConfig returns sensible defaults.
func DefaultProviderConfig(wsURL, httpURL string, symbols []string) ProviderConfig {
	return ProviderConfig{
		WebSocketURL:   wsURL,
		HTTPURL:        httpURL,
		Symbols:        symbols,
		StaleTimeout:   30 * time.Second,
		EnableFallback: true,
	}
}

// tickState holds the latest observation for one symbol.
type tickState struct {
	price      decimal.Decimal
	lastUpdate time.Time
	mu         sync.RWMutex
}

// Provider serves the latest feed tick per symbol: WebSocket stream
// primary, REST fallback when the stream is stale or cold.
type Provider struct {
	config     ProviderConfig
	logger     logger.LoggerInterface
	client     *Client     // nil when no stream URL is configured
	httpClient *HTTPClient // nil when fallback is unavailable

	ticks   map[string]*tickState
	ticksMu sync.RWMutex

	tracer trace.Tracer
}

// NewProvider creates a new feed provider.
func NewProvider(cfg ProviderConfig, log logger.LoggerInterface) (*Provider, error) {
	if cfg.WebSocketURL == "" && cfg.HTTPURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("feed needs a websocket or http url"))
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = 30 * time.Second
	}

	p := &Provider{
		config: cfg,
		logger: log,
		ticks:  make(map[string]*tickState),
		tracer: otel.Tracer(tracerName),
	}

	for _, sym := range cfg.Symbols {
		p.ticks[NormalizeSymbol(sym)] = &tickState{}
	}

	if cfg.WebSocketURL != "" {
		client, err := NewClient(DefaultClientConfig(cfg.WebSocketURL, cfg.Symbols), log)
		if err != nil {
			return nil, err
		}
		client.OnTicker(p.handleTicker)
		p.client = client
	}

	if cfg.HTTPURL != "" && (cfg.EnableFallback || cfg.WebSocketURL == "") {
		httpClient, err := NewHTTPClient(HTTPClientConfig{BaseURL: cfg.HTTPURL}, log)
		if err != nil {
			if cfg.WebSocketURL == "" {
				return nil, err
			}
			log.Warn(context.Background(), "failed to create HTTP fallback client", "error", err)
		} else {
			p.httpClient = httpClient
		}
	}

	return p, nil
}

// Connect starts the WebSocket stream, when one is configured.
func (p *Provider) Connect(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	return p.client.Connect(ctx)
}

// Close shuts the stream down.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// LatestTick returns the most recent tick for a symbol. A stale or
// missing stream tick falls back to REST; the REST answer refreshes the
// cached state so subsequent reads stay warm.
func (p *Provider) LatestTick(ctx context.Context, symbol string) (domain.Tick, error) {
	ctx, span := p.tracer.Start(ctx, "feed.latest_tick",
		trace.WithAttributes(attribute.String("symbol", symbol)),
	)
	defer span.End()

	symbol = NormalizeSymbol(symbol)

	p.ticksMu.RLock()
	state, ok := p.ticks[symbol]
	p.ticksMu.RUnlock()

	if !ok {
		return domain.Tick{}, apperror.New(apperror.CodeNotFound,
			apperror.WithContext(fmt.Sprintf("symbol %s not tracked", symbol)))
	}

	state.mu.RLock()
	price := state.price
	at := state.lastUpdate
	state.mu.RUnlock()

	fresh := !at.IsZero() && time.Since(at) <= p.config.StaleTimeout
	if fresh {
		span.SetAttributes(attribute.String("source", "websocket"))
		return domain.Tick{Symbol: symbol, Price: price, At: at}, nil
	}

	if p.httpClient != nil {
		p.logger.Debug(ctx, "stream tick stale, using HTTP fallback", "symbol", symbol)
		return p.latestTickViaHTTP(ctx, symbol, span)
	}

	if at.IsZero() {
		return domain.Tick{}, apperror.New(apperror.CodeFeedUnavailable,
			apperror.WithContext(fmt.Sprintf("no tick for %s yet", symbol)))
	}
	return domain.Tick{}, apperror.New(apperror.CodeFeedStale,
		apperror.WithContext(fmt.Sprintf("tick for %s is %s old", symbol, time.Since(at).Round(time.Second))))
}

// latestTickViaHTTP fetches the tick via REST and refreshes the cache.
func (p *Provider) latestTickViaHTTP(ctx context.Context, symbol string, span trace.Span) (domain.Tick, error) {
	resp, err := p.httpClient.GetTicker(ctx, symbol)
	if err != nil {
		return domain.Tick{}, err
	}

	event := resp.ToTickerEvent()
	price, err := event.ParsePrice()
	if err != nil {
		return domain.Tick{}, apperror.New(apperror.CodeFeedUnavailable,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("unparseable price %q for %s", event.Price, symbol)))
	}

	at := event.At()
	if event.Timestamp == 0 {
		at = time.Now()
	}

	p.storeTick(symbol, price, at)

	span.SetAttributes(attribute.String("source", "http_fallback"))
	p.logger.Info(ctx, "tick retrieved via HTTP fallback",
		"symbol", symbol, "price", price.String())

	return domain.Tick{Symbol: symbol, Price: price, At: at}, nil
}

// handleTicker processes stream updates.
func (p *Provider) handleTicker(event *TickerEvent) {
	ctx := context.Background()

	price, err := event.ParsePrice()
	if err != nil {
		p.logger.Debug(ctx, "failed to parse tick price", "symbol", event.Symbol, "error", err)
		return
	}

	at := event.At()
	if event.Timestamp == 0 {
		at = time.Now()
	}

	p.storeTick(event.Symbol, price, at)
}

func (p *Provider) storeTick(symbol string, price decimal.Decimal, at time.Time) {
	p.ticksMu.RLock()
	state, ok := p.ticks[symbol]
	p.ticksMu.RUnlock()

	if !ok {
		// Symbols arrive normalized; an unknown one is feed noise.
		p.logger.Debug(context.Background(), "tick for untracked symbol", "symbol", symbol)
		return
	}

	state.mu.Lock()
	state.price = price
	state.lastUpdate = at
	state.mu.Unlock()
}
