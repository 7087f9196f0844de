package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/httpclient"
	"github.com/dexkeep/keeperbot/internal/logger"
)

const (
	tickerEndpoint = "/v1/ticker"

	httpTimeout = 10 * time.Second
)

// HTTPClientConfig holds configuration for the feed REST client.
type HTTPClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient provides REST access to the feed for fallback reads.
type HTTPClient struct {
	client httpclient.Client
	config HTTPClientConfig
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewHTTPClient creates a new feed HTTP client.
func NewHTTPClient(cfg HTTPClientConfig, log logger.LoggerInterface) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("feed http url is required"))
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}

	tracer := otel.Tracer(tracerName)

	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("feed"),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(timeout),
		httpclient.WithTraceOptions(tracer, httpclient.TraceRequest, httpclient.TraceResponse),
		httpclient.WithHeaders(map[string]string{
			"Accept": "application/json",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	return &HTTPClient{
		client: client,
		config: cfg,
		logger: log,
		tracer: tracer,
	}, nil
}

// GetTicker fetches the latest tick for a symbol via REST. Used when
// the WebSocket stream is stale or not yet warm.
func (c *HTTPClient) GetTicker(ctx context.Context, symbol string) (*TickerResponse, error) {
	ctx, span := c.tracer.Start(ctx, "feed.http.get_ticker",
		trace.WithAttributes(attribute.String("symbol", symbol)),
	)
	defer span.End()

	var result TickerResponse
	resp, err := c.client.NewRequest(
		httpclient.WithLabels(
			httpclient.NewLabel("endpoint", "ticker"),
			httpclient.NewLabel("symbol", symbol),
		),
		httpclient.WithResponseErrorHandler(feedErrorHandler),
	).
		SetQueryParam("symbol", symbol).
		SetResult(&result).
		Get(ctx, tickerEndpoint)

	if err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeFeedUnavailable,
			apperror.WithCause(err),
			apperror.WithContext("failed to fetch ticker from REST API"))
	}

	if resp.IsError() {
		return nil, apperror.New(apperror.CodeFeedUnavailable,
			apperror.WithContext(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.String())))
	}

	result.Symbol = NormalizeSymbol(result.Symbol)

	span.SetAttributes(
		attribute.String("price", result.Price),
		attribute.Int64("ts", result.Timestamp),
	)

	c.logger.Debug(ctx, "fetched ticker via HTTP",
		"symbol", result.Symbol,
		"price", result.Price)

	return &result, nil
}

// FeedAPIError represents an error response from the feed API.
type FeedAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *FeedAPIError) Error() string {
	return fmt.Sprintf("feed API error %d: %s", e.Code, e.Message)
}

// feedErrorHandler parses feed API error responses.
func feedErrorHandler(statusCode int, body []byte) error {
	if statusCode >= 400 {
		var apiErr FeedAPIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", statusCode, string(body))
	}
	return nil
}
