// Package footprint implements the order-flow/footprint aggregator (C4):
// per (symbol, interval) bar-open-time -> price-bucket maps of buy/sell
// volume, built trade-by-trade. Grounded on the teacher's
// internal/marketdata/agg.Aggregator map-of-map-per-key accumulation shape;
// footprint's per-bar buckets play the role of agg's per-second candle
// states, and the bounded-bar retention plays the role of agg's
// watermark-driven flushOld.
package footprint

import (
	"math"
	"sync"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

// DefaultBarBound is the default number of recent bars retained per
// (symbol, interval) key.
const DefaultBarBound = 200

// DefaultMinTick is the floor on the computed tick size, so low-priced
// assets don't bucket at an unrepresentable sub-scale-unit size.
var DefaultMinTick = fixedpoint.FromFloat64(0.00000001)

// TickSize derives the price-bucket width from the order of magnitude of
// midPrice: tick = 10^(floor(log10(midPrice)) - 2), so roughly 100 buckets
// span one order of magnitude (a $60,000 BTC book buckets at $100; a $0.50
// altcoin buckets at $0.001). Clamped to minTick.
func TickSize(midPrice, minTick fixedpoint.Value) fixedpoint.Value {
	mid := midPrice.Float64()
	if mid <= 0 {
		return minTick
	}
	exp := math.Floor(math.Log10(mid)) - 2
	tick := fixedpoint.FromFloat64(math.Pow(10, exp))
	if tick.LessThan(minTick) {
		return minTick
	}
	return tick
}

// bar holds one interval's price-bucketed order flow.
type bar struct {
	openTime int64
	buckets  map[int64]*model.FootprintBucket // tick index -> bucket
}

// series is the bounded, time-ordered sequence of bars for one
// (provider, symbol, interval) key.
type series struct {
	bars []*bar // append order (oldest..newest by openTime while trades arrive in time order)
}

// Aggregator is the process-wide footprint state, one instance per engine.
type Aggregator struct {
	mu       sync.Mutex
	barBound int
	minTick  fixedpoint.Value
	series   map[string]*series // key = "provider:symbol:interval"
}

// New constructs an Aggregator. barBound <= 0 uses DefaultBarBound; a zero
// minTick uses DefaultMinTick.
func New(barBound int, minTick fixedpoint.Value) *Aggregator {
	if barBound <= 0 {
		barBound = DefaultBarBound
	}
	if minTick.IsZero() {
		minTick = DefaultMinTick
	}
	return &Aggregator{
		barBound: barBound,
		minTick:  minTick,
		series:   make(map[string]*series),
	}
}

// OnTrade incorporates a single trade into the bar for its interval,
// rounding price to the tick grid derived from midPrice, and returns the
// updated bucket.
func (a *Aggregator) OnTrade(t model.Trade, interval string, midPrice fixedpoint.Value) *model.FootprintBucket {
	barOpen := model.FloorToInterval(t.TS, interval).Unix()
	tick := TickSize(midPrice, a.minTick)
	tickIdx := roundToTick(t.Price, tick)
	bucketPrice := tick.MulInt(tickIdx)

	key := t.Provider + ":" + t.Symbol + ":" + interval

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.series[key]
	if !ok {
		s = &series{}
		a.series[key] = s
	}

	b := s.findOrCreateBar(barOpen)
	fb, ok := b.buckets[tickIdx]
	if !ok {
		fb = &model.FootprintBucket{
			Symbol:      t.Symbol,
			Provider:    t.Provider,
			Interval:    interval,
			BarOpenTime: barOpen,
			Price:       bucketPrice,
		}
		b.buckets[tickIdx] = fb
	}
	if t.AggressiveBuy() {
		fb.BuyVolume = fb.BuyVolume.Add(t.Qty)
	} else {
		fb.SellVolume = fb.SellVolume.Add(t.Qty)
	}
	fb.TradeCount++

	a.evictOldBars(s)
	return fb
}

// findOrCreateBar returns the bar for barOpen, creating it and appending it
// at the end if it doesn't already exist. Trades for a bar already evicted
// start a fresh bar appended after the newest one rather than being dropped,
// so the series is in openTime order only while trades arrive in time order:
// the footprint store has no "late trade" concept the way candlestore does,
// since trades only ever append flow to whichever bar they floor into.
func (s *series) findOrCreateBar(barOpen int64) *bar {
	if n := len(s.bars); n > 0 && s.bars[n-1].openTime == barOpen {
		return s.bars[n-1]
	}
	for _, b := range s.bars {
		if b.openTime == barOpen {
			return b
		}
	}
	b := &bar{openTime: barOpen, buckets: make(map[int64]*model.FootprintBucket)}
	s.bars = append(s.bars, b)
	return b
}

func (a *Aggregator) evictOldBars(s *series) {
	if len(s.bars) <= a.barBound {
		return
	}
	excess := len(s.bars) - a.barBound
	s.bars = s.bars[excess:]
}

// Bars returns the buckets of the bar whose open time equals barOpenTime for
// key "provider:symbol:interval", sorted by price ascending. Returns nil
// if no such bar is held.
func (a *Aggregator) Bars(key string, barOpenTime int64) []model.FootprintBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.series[key]
	if !ok {
		return nil
	}
	for _, b := range s.bars {
		if b.openTime == barOpenTime {
			return sortedBuckets(b)
		}
	}
	return nil
}

// LastBar returns the most recently updated bar's buckets for key.
func (a *Aggregator) LastBar(key string) []model.FootprintBucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.series[key]
	if !ok || len(s.bars) == 0 {
		return nil
	}
	return sortedBuckets(s.bars[len(s.bars)-1])
}

func sortedBuckets(b *bar) []model.FootprintBucket {
	out := make([]model.FootprintBucket, 0, len(b.buckets))
	for _, fb := range b.buckets {
		out = append(out, *fb)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Price.LessThan(out[j-1].Price); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// roundToTick returns the nearest tick-index (round-half-up) for price
// under the given tick size.
func roundToTick(price, tick fixedpoint.Value) int64 {
	if tick.IsZero() {
		return 0
	}
	ratio := price.Div(tick)
	f := ratio.Float64()
	return int64(math.Floor(f + 0.5))
}

// BarCount returns how many bars are currently retained for key, for
// tests and metrics.
func (a *Aggregator) BarCount(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.series[key]
	if !ok {
		return 0
	}
	return len(s.bars)
}
