package gateway

import (
	"sync"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

// SymbolStats holds the running per-symbol statistics the order-flow
// endpoint's getStats control message answers from: trade count,
// cumulative aggressive buy/sell volume, last traded price, last spread.
type SymbolStats struct {
	TradeCount   int64            `json:"tradeCount"`
	BuyVolume    fixedpoint.Value `json:"buyVolume"`
	SellVolume   fixedpoint.Value `json:"sellVolume"`
	LastPrice    fixedpoint.Value `json:"lastPrice"`
	LastSpread   fixedpoint.Value `json:"lastSpread"`
}

// StatsRegistry tracks SymbolStats per symbol, guarded by a single mutex
// (update rate is bounded by trade/order-book ingress, not client count).
type StatsRegistry struct {
	mu    sync.RWMutex
	stats map[string]*SymbolStats
}

func NewStatsRegistry() *StatsRegistry {
	return &StatsRegistry{stats: make(map[string]*SymbolStats)}
}

func (r *StatsRegistry) OnTrade(t model.Trade) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(t.Symbol)
	s.TradeCount++
	s.LastPrice = t.Price
	if t.AggressiveBuy() {
		s.BuyVolume = s.BuyVolume.Add(t.Qty)
	} else {
		s.SellVolume = s.SellVolume.Add(t.Qty)
	}
}

func (r *StatsRegistry) OnOrderBook(b model.OrderBookSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(b.Symbol)
	s.LastSpread = b.Spread()
}

func (r *StatsRegistry) get(symbol string) *SymbolStats {
	s, ok := r.stats[symbol]
	if !ok {
		s = &SymbolStats{}
		r.stats[symbol] = s
	}
	return s
}

// Snapshot returns a copy of the current stats for one symbol, or the zero
// value if the symbol has not been observed yet.
func (r *StatsRegistry) Snapshot(symbol string) SymbolStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.stats[symbol]; ok {
		return *s
	}
	return SymbolStats{}
}

// All returns a copy of every tracked symbol's stats.
func (r *StatsRegistry) All() map[string]SymbolStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]SymbolStats, len(r.stats))
	for sym, s := range r.stats {
		out[sym] = *s
	}
	return out
}
