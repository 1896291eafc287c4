package portfolio

import (
	"sync"
	"time"

	"cryptoengine/internal/fixedpoint"
)

// Trade is a completed fill recorded for reporting. Cost-basis and realized
// P&L bookkeeping lives on Portfolio itself (single source of truth); this
// tracker only keeps the append-only trade log and derives summaries from
// the portfolio's current state.
type Trade struct {
	Provider  string           `json:"provider"`
	Symbol    string           `json:"symbol"`
	Action    string           `json:"action"` // BUY or SELL
	Qty       fixedpoint.Value `json:"qty"`
	Price     fixedpoint.Value `json:"price"`
	Timestamp time.Time        `json:"timestamp"`
}

// PnLTracker records the trade log backing a PnLSummary.
type PnLTracker struct {
	mu     sync.RWMutex
	trades []Trade
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{trades: make([]Trade, 0, 500)}
}

// RecordTrade appends a completed fill to the trade log.
func (p *PnLTracker) RecordTrade(trade Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, trade)
}

// GetTrades returns a snapshot of all recorded trades.
func (p *PnLTracker) GetTrades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// PnLSummary is a point-in-time P&L report.
type PnLSummary struct {
	RealizedPnL   fixedpoint.Value `json:"realizedPnl"`
	UnrealizedPnL fixedpoint.Value `json:"unrealizedPnl"`
	TotalPnL      fixedpoint.Value `json:"totalPnl"`
	TotalTrades   int              `json:"totalTrades"`
	OpenPositions int              `json:"openPositions"`
}

// GetSummary builds a PnLSummary from the trade log and the portfolio's
// current positions.
func (p *PnLTracker) GetSummary(pf *Portfolio) PnLSummary {
	p.mu.RLock()
	totalTrades := len(p.trades)
	p.mu.RUnlock()

	realized := pf.TotalRealizedPnL()
	unrealized := pf.TotalUnrealizedPnL()

	openPositions := 0
	for _, pos := range pf.GetPositions() {
		if !pos.Qty.IsZero() {
			openPositions++
		}
	}

	return PnLSummary{
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      realized.Add(unrealized),
		TotalTrades:   totalTrades,
		OpenPositions: openPositions,
	}
}
