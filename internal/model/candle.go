package model

import (
	"encoding/json"
	"time"

	"cryptoengine/internal/fixedpoint"
)

// Candle is a fixed-interval OHLCV bar for one (provider, symbol, interval).
// All price/volume fields use fixedpoint.Value to avoid floating-point
// drift. A Candle is emitted repeatedly while open (Closed=false) with
// monotonic High/Low/Close revisions; the final emission for a bucket
// carries Closed=true.
type Candle struct {
	Symbol     string          `json:"symbol"`
	Provider   string          `json:"provider"`
	Interval   string          `json:"interval"` // e.g. "1m", "5m", "1h"
	OpenTime   time.Time       `json:"openTime"`
	CloseTime  time.Time       `json:"closeTime"`
	Open       fixedpoint.Value `json:"open"`
	High       fixedpoint.Value `json:"high"`
	Low        fixedpoint.Value `json:"low"`
	Close      fixedpoint.Value `json:"close"`
	Volume     fixedpoint.Value `json:"volume"`      // base-asset volume
	QuoteVolume fixedpoint.Value `json:"quoteVolume"` // quote-asset volume
	TradeCount int64           `json:"tradeCount"`
	Closed     bool            `json:"closed"`
}

// Key returns the composite store key for this candle: "provider:symbol:interval".
func (c *Candle) Key() string {
	return c.Provider + ":" + c.Symbol + ":" + c.Interval
}

// Valid checks the two invariants §3 places on Candle: openTime < closeTime,
// and low <= min(open,close) <= max(open,close) <= high.
func (c *Candle) Valid() bool {
	if !c.OpenTime.Before(c.CloseTime) {
		return false
	}
	lo := fixedpoint.Min(c.Open, c.Close)
	hi := fixedpoint.Max(c.Open, c.Close)
	if c.Low.GreaterThan(lo) {
		return false
	}
	if c.High.LessThan(hi) {
		return false
	}
	return true
}

// HL2 returns (high+low)/2.
func (c *Candle) HL2() fixedpoint.Value {
	return c.High.Add(c.Low).Div(fixedpoint.FromInt(2))
}

// HLC3 returns (high+low+close)/3.
func (c *Candle) HLC3() fixedpoint.Value {
	sum := c.High.Add(c.Low).Add(c.Close)
	return sum.Div(fixedpoint.FromInt(3))
}

// OHLC4 returns (open+high+low+close)/4.
func (c *Candle) OHLC4() fixedpoint.Value {
	sum := c.Open.Add(c.High).Add(c.Low).Add(c.Close)
	return sum.Div(fixedpoint.FromInt(4))
}

// Source selects one of the price fields SMA/TRAMA/etc. can be computed
// against, per the spec's "close/open/high/low/hl2/hlc3/ohlc4" selector.
type Source string

const (
	SourceClose Source = "close"
	SourceOpen  Source = "open"
	SourceHigh  Source = "high"
	SourceLow   Source = "low"
	SourceHL2   Source = "hl2"
	SourceHLC3  Source = "hlc3"
	SourceOHLC4 Source = "ohlc4"
)

// Select extracts the named source price from a candle. Unknown sources
// fall back to close.
func (c *Candle) Select(src Source) fixedpoint.Value {
	switch src {
	case SourceOpen:
		return c.Open
	case SourceHigh:
		return c.High
	case SourceLow:
		return c.Low
	case SourceHL2:
		return c.HL2()
	case SourceHLC3:
		return c.HLC3()
	case SourceOHLC4:
		return c.OHLC4()
	default:
		return c.Close
	}
}

// JSON returns the JSON-encoded candle (errors ignored; hot-path usage,
// matching the teacher's Candle.JSON helper).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
