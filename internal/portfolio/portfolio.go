// Package portfolio tracks positions, P&L, and portfolio-level metrics.
//
// It maintains a real-time view of all open positions, calculates unrealized
// P&L from latest market prices, and provides exposure summaries.
package portfolio

import (
	"sync"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

// Portfolio tracks all open positions, keyed by model.Position.Key()
// ("provider:symbol").
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]*model.Position
}

// New creates a new empty Portfolio.
func New() *Portfolio {
	return &Portfolio{
		positions: make(map[string]*model.Position),
	}
}

// UpdatePrice updates the last traded price for a position from a closed
// candle, so unrealized P&L reflects current market price even without a
// new fill.
func (pf *Portfolio) UpdatePrice(candle model.Candle) {
	key := candle.Provider + ":" + candle.Symbol
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[key]; ok {
		pos.LastPrice = candle.Close
	}
}

// ApplyFill updates (or creates) a position with an executed fill, using
// weighted-average cost basis. A fill that reduces or reverses the position
// realizes P&L against the prior average price.
func (pf *Portfolio) ApplyFill(provider, symbol string, side string, qty, price fixedpoint.Value) *model.Position {
	key := provider + ":" + symbol
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pos, ok := pf.positions[key]
	if !ok {
		pos = &model.Position{Provider: provider, Symbol: symbol}
		pf.positions[key] = pos
	}

	signedQty := qty
	if side == "SELL" {
		signedQty = qty.Mul(fixedpoint.FromInt(-1))
	}

	switch {
	case pos.Qty.IsZero() || sameSign(pos.Qty, signedQty):
		newQty := pos.Qty.Add(signedQty)
		if !newQty.IsZero() {
			pos.AvgPrice = weightedAverage(pos.Qty, pos.AvgPrice, signedQty, price)
		}
		pos.Qty = newQty

	default:
		// Reducing or flipping the position: realize P&L on the closed portion.
		closing := fixedpoint.Min(abs(pos.Qty), abs(signedQty))
		realized := price.Sub(pos.AvgPrice).Mul(closing)
		if pos.Qty.IsNegative() {
			realized = realized.Mul(fixedpoint.FromInt(-1))
		}
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		pos.Qty = pos.Qty.Add(signedQty)
		if sameSign(pos.Qty, signedQty) && !pos.Qty.IsZero() {
			// Flipped through zero: the new position opens at the fill price.
			pos.AvgPrice = price
		}
	}

	pos.LastPrice = price
	return pos
}

func abs(v fixedpoint.Value) fixedpoint.Value {
	if v.IsNegative() {
		return v.Mul(fixedpoint.FromInt(-1))
	}
	return v
}

func sameSign(a, b fixedpoint.Value) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	return a.IsNegative() == b.IsNegative()
}

func weightedAverage(qty1, price1, qty2, price2 fixedpoint.Value) fixedpoint.Value {
	totalQty := qty1.Add(qty2)
	if totalQty.IsZero() {
		return price2
	}
	num := qty1.Mul(price1).Add(qty2.Mul(price2))
	return num.Div(totalQty)
}

// GetPositions returns a snapshot of all positions.
func (pf *Portfolio) GetPositions() []model.Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]model.Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		result = append(result, *p)
	}
	return result
}

// Position returns one symbol's current position, or false if flat/unseen.
func (pf *Portfolio) Position(provider, symbol string) (model.Position, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	p, ok := pf.positions[provider+":"+symbol]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// TotalUnrealizedPnL returns the total unrealized P&L across all positions.
func (pf *Portfolio) TotalUnrealizedPnL() fixedpoint.Value {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	total := fixedpoint.Zero
	for _, p := range pf.positions {
		total = total.Add(p.UnrealizedPnL())
	}
	return total
}

// TotalRealizedPnL returns the total realized P&L across all positions.
func (pf *Portfolio) TotalRealizedPnL() fixedpoint.Value {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	total := fixedpoint.Zero
	for _, p := range pf.positions {
		total = total.Add(p.RealizedPnL)
	}
	return total
}
