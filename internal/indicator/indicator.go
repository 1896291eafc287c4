// Package indicator implements the indicator framework (C5) and its stock
// implementations (C6). Every indicator validates its own parameter schema,
// declares the data types it needs, and runs through a common lifecycle
// (Init/OnNewCandle/OnNewTick/OnTradeUpdate/OnOrderBookUpdate) driven by the
// instance manager in instance.go. Grounded on internal/indicator.Engine's
// instance-registry shape and internal/indicator's Snapshottable state
// contract, generalized from the teacher's single-goroutine Process() to the
// per-instance-serialized dispatcher in dispatcher.go.
package indicator

import (
	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

// DataType is one of the event kinds an indicator can declare it needs.
type DataType string

const (
	DataKline     DataType = "kline"
	DataTrade     DataType = "trade"
	DataAggTrade  DataType = "aggregate-trade"
	DataOrderBook DataType = "order-book"
	DataBookTicker DataType = "book-ticker"
)

// ParamType is the type tag for one parameter in an indicator's schema.
type ParamType string

const (
	ParamInt     ParamType = "integer"
	ParamDecimal ParamType = "decimal"
	ParamString  ParamType = "string"
	ParamBool    ParamType = "boolean"
)

// Parameter describes one configurable input to an indicator.
type Parameter struct {
	Name        string
	DisplayName string
	Type        ParamType
	Default     any
	Min         *float64
	Max         *float64
	Required    bool
}

// RenderKind is how a named output series should be drawn.
type RenderKind string

const (
	RenderLine      RenderKind = "line"
	RenderHistogram RenderKind = "histogram"
	RenderArea      RenderKind = "area"
)

// SeriesMeta is the visualization metadata for one named output series.
type SeriesMeta struct {
	DisplayName string
	Render      RenderKind
	Color       string
	Width       float64
	Pane        string
	PaneOrder   int
}

// State is an indicator's opaque, per-instance working state. Concrete
// indicators assert it back to their own state type; the framework never
// inspects it directly, mirroring internal/indicator's Snapshottable
// opaque-state contract.
type State any

// Point is one entry of a CalculateHistorical replay: a timestamp, the
// named scalar outputs at that point, and any shapes emitted.
type Point struct {
	TS     int64
	Values map[string]float64
	Shapes []model.Shape
}

// Indicator is the core contract every C6 implementation satisfies.
type Indicator interface {
	ID() string
	Name() string
	Description() string
	Category() string
	ParamSchema() []Parameter
	RequiredDataTypes() []DataType

	// MinCandles returns the smallest warm-up window needed for meaningful
	// output, given a validated parameter set.
	MinCandles(params map[string]any) int

	Init(historical []model.Candle, params map[string]any) State
	OnNewCandle(candle model.Candle, params map[string]any, state State) (values map[string]float64, next State, shapes []model.Shape)
	OnNewTick(price fixedpoint.Value, params map[string]any, state State) (values map[string]float64, next State)
	OnTradeUpdate(trade model.Trade, params map[string]any, state State) (values map[string]float64, next State)
	OnOrderBookUpdate(book model.OrderBookSnapshot, params map[string]any, state State) (values map[string]float64, next State)

	VisualMetadata() map[string]SeriesMeta
}

// Base embeds default no-op implementations of the sub-candle lifecycle
// methods for indicators that only react to closed candles. Concrete
// indicators embed Base and override what they need, per the spec's
// "default returns last state unchanged" / "default no-op" language.
type Base struct{}

func (Base) OnNewTick(_ fixedpoint.Value, _ map[string]any, state State) (map[string]float64, State) {
	return nil, state
}

func (Base) OnTradeUpdate(_ model.Trade, _ map[string]any, state State) (map[string]float64, State) {
	return nil, state
}

func (Base) OnOrderBookUpdate(_ model.OrderBookSnapshot, _ map[string]any, state State) (map[string]float64, State) {
	return nil, state
}

func (Base) RequiredDataTypes() []DataType { return []DataType{DataKline} }
