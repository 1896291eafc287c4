package model

import (
	"time"

	"cryptoengine/internal/fixedpoint"
)

// Order represents a simulated order placed by the paper-trading executor
// (C8). There is no live brokerage integration; Status transitions are
// driven entirely by the paper executor matching against observed trades.
type Order struct {
	OrderID   string           `json:"orderId"`
	Symbol    string           `json:"symbol"`
	Provider  string           `json:"provider"`
	Side      string           `json:"side"`      // BUY, SELL
	OrderType string           `json:"orderType"` // MARKET, LIMIT
	Qty       fixedpoint.Value `json:"qty"`
	Price     fixedpoint.Value `json:"price"` // limit price (zero for market)
	Status    string           `json:"status"`    // PLACED, FILLED, REJECTED, CANCELLED
	FilledQty fixedpoint.Value `json:"filledQty"`
	AvgPrice  fixedpoint.Value `json:"avgPrice"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
