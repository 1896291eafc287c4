package model

import (
	"time"

	"cryptoengine/internal/fixedpoint"
)

// Trade is a single executed print on the exchange. Ephemeral: only the
// aggregated derivatives (candles, footprint buckets, indicator state) are
// retained by the engine — the Trade value itself is not stored.
type Trade struct {
	ID           int64            `json:"id"`
	Symbol       string           `json:"symbol"`
	Provider     string           `json:"provider"`
	Price        fixedpoint.Value `json:"price"`
	Qty          fixedpoint.Value `json:"qty"`
	QuoteQty     fixedpoint.Value `json:"quoteQty"`
	TS           time.Time        `json:"ts"`
	BuyerIsMaker bool             `json:"buyerIsMaker"`
	IsAggregate  bool             `json:"isAggregate"`
	FirstTradeID int64            `json:"firstTradeId,omitempty"`
	LastTradeID  int64            `json:"lastTradeId,omitempty"`
}

// AggressiveBuy reports whether this trade was initiated by a market buy
// (the taker lifted the ask): spec derived field, !BuyerIsMaker.
func (t *Trade) AggressiveBuy() bool {
	return !t.BuyerIsMaker
}

// CanonicalTS returns the trade's timestamp (kept for parity with the
// teacher's Tick.CanonicalTS naming; Trade always carries an exchange
// timestamp so there is no arrival-time fallback to apply).
func (t *Trade) CanonicalTS() time.Time {
	return t.TS
}
