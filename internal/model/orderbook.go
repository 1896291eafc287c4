package model

import "cryptoengine/internal/fixedpoint"

// PriceLevel is one side of an order book at a single price.
type PriceLevel struct {
	Price fixedpoint.Value `json:"price"`
	Qty   fixedpoint.Value `json:"qty"`
}

// OrderBookSnapshot is an ephemeral full or partial depth snapshot for one
// symbol. Bids are ordered descending by price, asks ascending. Not
// retained across updates — only the derived quantities below and whatever
// an indicator's own state captures survive.
type OrderBookSnapshot struct {
	Symbol   string       `json:"symbol"`
	Provider string       `json:"provider"`
	UpdateID int64        `json:"updateId"`
	TS       int64        `json:"ts"` // epoch millis
	Bids     []PriceLevel `json:"bids"`
	Asks     []PriceLevel `json:"asks"`
}

// BestBid returns the highest bid level, or false if the book side is empty.
func (o *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(o.Bids) == 0 {
		return PriceLevel{}, false
	}
	return o.Bids[0], true
}

// BestAsk returns the lowest ask level, or false if the book side is empty.
func (o *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(o.Asks) == 0 {
		return PriceLevel{}, false
	}
	return o.Asks[0], true
}

// Spread returns best-ask minus best-bid, or zero if either side is empty.
func (o *OrderBookSnapshot) Spread() fixedpoint.Value {
	bid, ok := o.BestBid()
	if !ok {
		return fixedpoint.Zero
	}
	ask, ok := o.BestAsk()
	if !ok {
		return fixedpoint.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// CumulativeBidVolume sums bid quantity across the top depth levels.
func (o *OrderBookSnapshot) CumulativeBidVolume(depth int) fixedpoint.Value {
	return cumulative(o.Bids, depth)
}

// CumulativeAskVolume sums ask quantity across the top depth levels.
func (o *OrderBookSnapshot) CumulativeAskVolume(depth int) fixedpoint.Value {
	return cumulative(o.Asks, depth)
}

func cumulative(levels []PriceLevel, depth int) fixedpoint.Value {
	sum := fixedpoint.Zero
	n := depth
	if n > len(levels) {
		n = len(levels)
	}
	for i := 0; i < n; i++ {
		sum = sum.Add(levels[i].Qty)
	}
	return sum
}
