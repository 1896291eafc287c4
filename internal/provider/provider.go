// Package provider defines the market-data provider surface (C1) that every
// exchange connector implements, and the normalized event type the
// universal data service (C2) fans out downstream.
package provider

import (
	"context"

	"cryptoengine/internal/model"
)

// EventKind discriminates the normalized events a Provider emits.
type EventKind string

const (
	EventCandle    EventKind = "candle"
	EventTrade     EventKind = "trade"
	EventOrderBook EventKind = "orderBook"
	EventBookTicker EventKind = "bookTicker"
)

// Event is a single normalized market-data event. Only the field matching
// Kind is populated.
type Event struct {
	Kind      EventKind
	Candle    *model.Candle
	Trade     *model.Trade
	OrderBook *model.OrderBookSnapshot
}

// Handler receives every normalized event a Provider produces. A Provider
// has exactly one handler at a time (SetHandler replaces it); C2 is the
// handler in production and is itself responsible for further fan-out.
type Handler func(Event)

// Provider owns one long-lived streaming connection to an exchange and
// exposes a symbol/interval subscription surface (§4.1).
type Provider interface {
	// Connect establishes the streaming connection. Idempotent if already
	// connected.
	Connect(ctx context.Context) error

	// Disconnect flags a manual close, tears down the connection, and
	// clears subscription tracking. No automatic reconnect follows.
	Disconnect() error

	// SubscribeTicker, SubscribeKline, SubscribeTrade, SubscribeAggTrade,
	// SubscribeDepth, and SubscribeBookTicker register a stream. Each
	// sends a request envelope with a monotonically increasing id.
	SubscribeTicker(symbol string) error
	SubscribeKline(symbol, interval string) error
	SubscribeTrade(symbol string) error
	SubscribeAggTrade(symbol string) error
	SubscribeDepth(symbol string) error
	SubscribeBookTicker(symbol string) error

	UnsubscribeTicker(symbol string) error
	UnsubscribeKline(symbol, interval string) error
	UnsubscribeTrade(symbol string) error
	UnsubscribeAggTrade(symbol string) error
	UnsubscribeDepth(symbol string) error
	UnsubscribeBookTicker(symbol string) error

	// HistoricalKlines fetches at most limit (capped at 1000) closed
	// candles via REST.
	HistoricalKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)

	// HistoricalKlinesRange fetches closed candles in [start, end] via REST.
	HistoricalKlinesRange(ctx context.Context, symbol, interval string, start, end int64) ([]model.Candle, error)

	// SetHandler registers the single normalized-event sink.
	SetHandler(h Handler)
}
