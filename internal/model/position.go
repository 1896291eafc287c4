package model

import "cryptoengine/internal/fixedpoint"

// Position tracks a bot's net exposure in one symbol (C8 risk/portfolio).
type Position struct {
	Symbol      string           `json:"symbol"`
	Provider    string           `json:"provider"`
	Qty         fixedpoint.Value `json:"qty"` // positive = long, negative = short
	AvgPrice    fixedpoint.Value `json:"avgPrice"`
	LastPrice   fixedpoint.Value `json:"lastPrice"`
	RealizedPnL fixedpoint.Value `json:"realizedPnl"`
}

// UnrealizedPnL computes unrealized profit/loss: (lastPrice - avgPrice) * qty.
func (p *Position) UnrealizedPnL() fixedpoint.Value {
	return p.LastPrice.Sub(p.AvgPrice).Mul(p.Qty)
}

// Key returns a unique key for this position: "provider:symbol".
func (p *Position) Key() string {
	return p.Provider + ":" + p.Symbol
}
