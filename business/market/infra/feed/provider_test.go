package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any) {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)  {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

// TestProvider_FallbackToHTTP tests that the provider falls back to REST
// when stream data is stale or unavailable.
func TestProvider_FallbackToHTTP(t *testing.T) {
	mockTicker := TickerResponse{
		Symbol:    "WETHUSD",
		Price:     "251.75",
		Timestamp: time.Now().UnixMilli(),
	}

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++

		symbol := r.URL.Query().Get("symbol")
		if symbol != "WETHUSD" {
			t.Errorf("expected symbol WETHUSD, got %s", symbol)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mockTicker)
	}))
	defer server.Close()

	cfg := ProviderConfig{
		HTTPURL:        server.URL,
		Symbols:        []string{"WETHUSD"},
		StaleTimeout:   100 * time.Millisecond,
		EnableFallback: true,
	}

	provider, err := NewProvider(cfg, &mockLogger{})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	ctx := context.Background()

	// No stream connected, so the state is cold and REST must answer.
	t.Run("fallback_when_no_stream_data", func(t *testing.T) {
		tick, err := provider.LatestTick(ctx, "WETHUSD")
		if err != nil {
			t.Fatalf("expected HTTP fallback to succeed, got error: %v", err)
		}

		want := decimal.RequireFromString("251.75")
		if !tick.Price.Equal(want) {
			t.Errorf("price = %s, want %s", tick.Price, want)
		}
	})

	t.Run("fallback_when_stream_data_stale", func(t *testing.T) {
		provider.storeTick("WETHUSD", decimal.NewFromInt(200), time.Now().Add(-time.Hour))

		tick, err := provider.LatestTick(ctx, "WETHUSD")
		if err != nil {
			t.Fatalf("expected HTTP fallback on stale data, got error: %v", err)
		}

		// Fresh REST data, not the stale stream price.
		want := decimal.RequireFromString("251.75")
		if !tick.Price.Equal(want) {
			t.Errorf("price = %s, want fallback price %s", tick.Price, want)
		}
	})

	t.Run("no_fallback_when_stream_data_fresh", func(t *testing.T) {
		before := requestCount
		fresh := decimal.RequireFromString("253.25")
		provider.storeTick("WETHUSD", fresh, time.Now())

		tick, err := provider.LatestTick(ctx, "WETHUSD")
		if err != nil {
			t.Fatalf("expected success with fresh data, got error: %v", err)
		}

		if !tick.Price.Equal(fresh) {
			t.Errorf("price = %s, want stream price %s", tick.Price, fresh)
		}
		if requestCount != before {
			t.Errorf("HTTP fallback used despite fresh data (%d extra requests)", requestCount-before)
		}
	})

	t.Run("untracked_symbol", func(t *testing.T) {
		_, err := provider.LatestTick(ctx, "MKRUSD")
		if apperror.GetCode(err) != apperror.CodeNotFound {
			t.Errorf("error code = %s, want NOT_FOUND", apperror.GetCode(err))
		}
	})
}

// TestProvider_FallbackDisabled tests behavior without a REST endpoint.
func TestProvider_FallbackDisabled(t *testing.T) {
	cfg := ProviderConfig{
		WebSocketURL:   "wss://feed.invalid/stream",
		Symbols:        []string{"WETHUSD"},
		StaleTimeout:   100 * time.Millisecond,
		EnableFallback: false,
	}

	provider, err := NewProvider(cfg, &mockLogger{})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	ctx := context.Background()

	// Cold state and no fallback.
	_, err = provider.LatestTick(ctx, "WETHUSD")
	if apperror.GetCode(err) != apperror.CodeFeedUnavailable {
		t.Errorf("error code = %s, want FEED_UNAVAILABLE", apperror.GetCode(err))
	}

	// Stale state and no fallback.
	provider.storeTick("WETHUSD", decimal.NewFromInt(250), time.Now().Add(-time.Hour))
	_, err = provider.LatestTick(ctx, "WETHUSD")
	if apperror.GetCode(err) != apperror.CodeFeedStale {
		t.Errorf("error code = %s, want FEED_STALE", apperror.GetCode(err))
	}
}

// TestHTTPClient_GetTicker tests the REST client.
func TestHTTPClient_GetTicker(t *testing.T) {
	mockResponse := TickerResponse{
		Symbol:    "mkrusd",
		Price:     "312.40",
		Timestamp: 1700000000000,
	}

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++

		if r.URL.Path != "/v1/ticker" {
			t.Errorf("expected path /v1/ticker, got %s", r.URL.Path)
		}
		if symbol := r.URL.Query().Get("symbol"); symbol != "MKRUSD" {
			t.Errorf("expected symbol MKRUSD, got %s", symbol)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mockResponse)
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL, Timeout: 5 * time.Second}, &mockLogger{})
	if err != nil {
		t.Fatalf("failed to create HTTP client: %v", err)
	}

	ctx := context.Background()
	ticker, err := client.GetTicker(ctx, "MKRUSD")
	if err != nil {
		t.Fatalf("GetTicker failed: %v", err)
	}

	// Symbols come back normalized.
	if ticker.Symbol != "MKRUSD" {
		t.Errorf("symbol = %s, want MKRUSD", ticker.Symbol)
	}
	if ticker.Price != "312.40" {
		t.Errorf("price = %s, want 312.40", ticker.Price)
	}
	if requestCount != 1 {
		t.Errorf("expected 1 HTTP request, got %d", requestCount)
	}
}

// TestHTTPClient_GetTicker_Error tests REST error handling.
func TestHTTPClient_GetTicker_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"code":    4001,
			"message": "unknown symbol",
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL}, &mockLogger{})
	if err != nil {
		t.Fatalf("failed to create HTTP client: %v", err)
	}

	_, err = client.GetTicker(context.Background(), "NOPE")
	if err == nil {
		t.Fatal("expected error for unknown symbol, got nil")
	}
}

// TestClient_HandleMessage tests stream message routing without a
// live connection.
func TestClient_HandleMessage(t *testing.T) {
	client, err := NewClient(DefaultClientConfig("wss://feed.invalid/stream", []string{"WETHUSD"}), &mockLogger{})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	var got *TickerEvent
	client.OnTicker(func(e *TickerEvent) { got = e })

	ctx := context.Background()

	client.handleMessage(ctx, []byte(`{"type":"ticker","data":{"symbol":"wethusd","price":"249.90","ts":1700000000000}}`))
	if got == nil {
		t.Fatal("ticker handler not invoked")
	}
	if got.Symbol != "WETHUSD" {
		t.Errorf("symbol = %s, want WETHUSD", got.Symbol)
	}

	price, err := got.ParsePrice()
	if err != nil {
		t.Fatalf("ParsePrice: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("249.90")) {
		t.Errorf("price = %s, want 249.90", price)
	}
	if got.At().UnixMilli() != 1700000000000 {
		t.Errorf("At = %d, want 1700000000000", got.At().UnixMilli())
	}

	// Control messages and garbage do not reach the handler.
	got = nil
	client.handleMessage(ctx, []byte(`{"type":"pong"}`))
	client.handleMessage(ctx, []byte(`not json`))
	if got != nil {
		t.Error("handler invoked for non-ticker message")
	}
}

// TestProvider_HandleTicker tests that stream ticks update provider state.
func TestProvider_HandleTicker(t *testing.T) {
	cfg := ProviderConfig{
		WebSocketURL: "wss://feed.invalid/stream",
		Symbols:      []string{"WETHUSD"},
		StaleTimeout: time.Minute,
	}

	provider, err := NewProvider(cfg, &mockLogger{})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	provider.handleTicker(&TickerEvent{
		Symbol:    "WETHUSD",
		Price:     "247.10",
		Timestamp: time.Now().UnixMilli(),
	})

	tick, err := provider.LatestTick(context.Background(), "WETHUSD")
	if err != nil {
		t.Fatalf("LatestTick: %v", err)
	}
	if !tick.Price.Equal(decimal.RequireFromString("247.10")) {
		t.Errorf("price = %s, want 247.10", tick.Price)
	}
}
