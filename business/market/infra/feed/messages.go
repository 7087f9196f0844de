// Package feed implements the FeedProvider port against the external
// ticker service.
package feed

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WebSocket request/response messages

// WSRequest is a WebSocket control request.
type WSRequest struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols,omitempty"`
}

// Control operations understood by the feed.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
)

// Stream message types
const (
	MessageTypeTicker = "ticker"
	MessageTypePong   = "pong"
	MessageTypeAck    = "ack"
)

// StreamMessage is the wrapper for all stream payloads.
type StreamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TickerEvent is one price update.
// Stream type: "ticker"
type TickerEvent struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Timestamp int64  `json:"ts"` // unix millis
}

// ParsePrice parses the price as decimal.
func (e *TickerEvent) ParsePrice() (decimal.Decimal, error) {
	return decimal.NewFromString(e.Price)
}

// At returns the tick time as time.Time.
func (e *TickerEvent) At() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// REST API responses

// TickerResponse is the REST answer for a single symbol.
type TickerResponse struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Timestamp int64  `json:"ts"`
}

// ToTickerEvent converts a REST response into the stream event shape so
// both paths feed the same handler.
func (r *TickerResponse) ToTickerEvent() *TickerEvent {
	return &TickerEvent{Symbol: r.Symbol, Price: r.Price, Timestamp: r.Timestamp}
}

// NormalizeSymbol returns the canonical uppercase feed symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
