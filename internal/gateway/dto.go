package gateway

import "cryptoengine/internal/model"

// WelcomeEnvelope is sent once, immediately on connect.
type WelcomeEnvelope struct {
	Type           string   `json:"type"` // "connected"
	Message        string   `json:"message"`
	SupportedTypes []string `json:"supportedTypes"`
}

// ErrorEnvelope reports a malformed or unknown control message. It fails the
// message, not the session.
type ErrorEnvelope struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// ControlMessage is a client -> server request on either endpoint.
// action ∈ {subscribe, unsubscribe, getStats, getProviders, getIntervals}.
type ControlMessage struct {
	Action string   `json:"action"`
	Symbol string   `json:"symbol,omitempty"`
	Types  []string `json:"types,omitempty"`
}

// OrderFlowEnvelope carries one order-flow event (trade, aggregate trade,
// order book, or book ticker) to sessions subscribed to the order-flow
// endpoint.
type OrderFlowEnvelope struct {
	Type      string                    `json:"type"` // "orderFlow"
	DataType  string                    `json:"dataType"`
	Symbol    string                    `json:"symbol"`
	Provider  string                    `json:"provider"`
	Timestamp int64                     `json:"timestamp"`
	Trade     *model.Trade              `json:"trade,omitempty"`
	OrderBook *model.OrderBookSnapshot  `json:"orderBook,omitempty"`
}

// TradingDataEnvelope carries unfiltered candle, trade, or order-book data
// to the general trading endpoint.
type TradingDataEnvelope struct {
	Type        string                   `json:"type"` // "tradingData"
	DataType    string                   `json:"dataType"`
	Symbol      string                   `json:"symbol"`
	Candlestick *model.Candle            `json:"candlestick,omitempty"`
	Trade       *model.Trade             `json:"trade,omitempty"`
	OrderBook   *model.OrderBookSnapshot `json:"orderBook,omitempty"`
}

// IndicatorUpdateEnvelope carries a per-instance indicator update on candle
// close.
type IndicatorUpdateEnvelope struct {
	Type        string             `json:"type"` // "indicatorUpdate"
	InstanceKey string             `json:"instanceKey"`
	Values      map[string]float64 `json:"values"`
	Shapes      []model.Shape      `json:"shapes,omitempty"`
}

// IndicatorTradeEnvelope / IndicatorOrderBookEnvelope carry high-frequency
// indicator variants driven by trade or order-book events rather than
// candle close.
type IndicatorTradeEnvelope struct {
	Type        string             `json:"type"` // "indicatorTrade"
	InstanceKey string             `json:"instanceKey"`
	Values      map[string]float64 `json:"values"`
	Shapes      []model.Shape      `json:"shapes,omitempty"`
}

type IndicatorOrderBookEnvelope struct {
	Type        string             `json:"type"` // "indicatorOrderBook"
	InstanceKey string             `json:"instanceKey"`
	Values      map[string]float64 `json:"values"`
	Shapes      []model.Shape      `json:"shapes,omitempty"`
}

// ReplayUpdateEnvelope drives a client-side replay of recorded candle
// history (cmd/replay), one tick per advanced candle.
type ReplayUpdateEnvelope struct {
	Type         string             `json:"type"` // "replayUpdate"
	State        string             `json:"state"` // "playing", "paused", "done"
	CurrentIndex int                `json:"currentIndex"`
	TotalCandles int                `json:"totalCandles"`
	Progress     float64            `json:"progress"` // 0..1
	Speed        float64            `json:"speed"`
	Candle       *model.Candle      `json:"candle,omitempty"`
	Indicators   map[string]float64 `json:"indicators,omitempty"`
}

// HistoryQuery is the request body for a historical indicator query.
type HistoryQuery struct {
	Provider    string         `json:"provider"`
	Symbol      string         `json:"symbol"`
	Interval    string         `json:"interval"`
	IndicatorID string         `json:"indicatorId"`
	Count       int            `json:"count"`
	Params      map[string]any `json:"params,omitempty"`
}

// HistoryPoint is one point of a non-shape indicator's historical series.
type HistoryPoint struct {
	Time   int64              `json:"time"` // seconds since epoch
	Values map[string]float64 `json:"values"`
}

// HistoryResponse answers a HistoryQuery. Either Data/Series is populated
// (line-series indicators) or SupportsShapes/Shapes/ShapesSummary is
// (shape-producing indicators, e.g. Order Block / SMC).
type HistoryResponse struct {
	Metadata       map[string]any            `json:"metadata"`
	Data           []HistoryPoint            `json:"data,omitempty"`
	Series         map[string][]float64      `json:"series,omitempty"`
	SupportsShapes bool                      `json:"supportsShapes,omitempty"`
	Shapes         map[string][]model.Shape  `json:"shapes,omitempty"`
	ShapesSummary  int                       `json:"shapesSummary,omitempty"`
}
