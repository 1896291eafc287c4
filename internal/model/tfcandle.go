package model

import (
	"encoding/json"

	"cryptoengine/internal/fixedpoint"
)

// ShapeKind discriminates the tagged sum of visual annotations an indicator
// can emit, replacing the shape-class hierarchy the spec asks to collapse
// into tagged values + interfaces (§9).
type ShapeKind string

const (
	ShapeBox    ShapeKind = "box"
	ShapeLine   ShapeKind = "line"
	ShapeMarker ShapeKind = "marker"
	ShapeArrow  ShapeKind = "arrow"
	ShapeFill   ShapeKind = "fill"
)

// Shape is a single visual annotation produced by an indicator. Only the
// fields relevant to Kind are populated; DedupKey (below) derives the key
// from the populated fields, and internal/indicator/shapes.go applies it
// across a slice.
type Shape struct {
	Kind      ShapeKind        `json:"kind"`
	Label     string           `json:"label,omitempty"`
	Color     string           `json:"color,omitempty"`
	Time1     int64            `json:"time1,omitempty"` // epoch seconds
	Time2     int64            `json:"time2,omitempty"`
	Price1    fixedpoint.Value `json:"price1,omitempty"`
	Price2    fixedpoint.Value `json:"price2,omitempty"`
	Direction string           `json:"direction,omitempty"` // arrow: "up"/"down"
	Text      string           `json:"text,omitempty"`
	Fields    map[string]any   `json:"fields,omitempty"` // e.g. volume-strength, touched
}

// DedupKey returns the key the spec's §4.5 shape-dedup rules define for this
// shape's kind:
//
//	box:    (time1, price1, price2)
//	line:   (time1, time2, price1, price2)
//	marker: (time, price, shape, text)     -- time1/price1 carry time/price
//	arrow:  (time, direction, text)        -- time1 carries time
//	fill:   unique per instance (caller supplies a stable Label)
func (s Shape) DedupKey() string {
	switch s.Kind {
	case ShapeBox:
		return keyJoin(string(s.Kind), i64(s.Time1), dec(s.Price1), dec(s.Price2))
	case ShapeLine:
		return keyJoin(string(s.Kind), i64(s.Time1), i64(s.Time2), dec(s.Price1), dec(s.Price2))
	case ShapeMarker:
		return keyJoin(string(s.Kind), i64(s.Time1), dec(s.Price1), s.Label, s.Text)
	case ShapeArrow:
		return keyJoin(string(s.Kind), i64(s.Time1), s.Direction, s.Text)
	case ShapeFill:
		return keyJoin(string(s.Kind), s.Label)
	default:
		return keyJoin(string(s.Kind), i64(s.Time1), i64(s.Time2), dec(s.Price1), dec(s.Price2), s.Label, s.Text)
	}
}

func keyJoin(parts ...string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\x1f" + p
	}
	return out
}

func i64(n int64) string       { return Itoa(int(n)) }
func dec(v fixedpoint.Value) string { return v.String() }

// IndicatorResult holds one computed update from an indicator instance: a
// named scalar series map, optional shapes, and optional auxiliary
// structures (e.g. a heatmap for Bookmap-style indicators).
type IndicatorResult struct {
	InstanceKey string             `json:"instanceKey"`
	Symbol      string             `json:"symbol"`
	Provider    string             `json:"provider"`
	Interval    string             `json:"interval"`
	IndicatorID string             `json:"indicatorId"`
	TS          int64              `json:"ts"` // epoch seconds of the triggering candle/event
	Values      map[string]float64 `json:"values"`
	Shapes      []Shape            `json:"shapes,omitempty"`
	Aux         map[string]any     `json:"aux,omitempty"`
	Ready       bool               `json:"ready"`
	Live        bool               `json:"live"` // true for sub-candle preview values
}

// StreamKey returns the transport key used for Redis Stream/PubSub routing:
// "ind:{indicatorId}:{interval}:{provider}:{symbol}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.IndicatorID + ":" + r.Interval + ":" + r.Provider + ":" + r.Symbol
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
