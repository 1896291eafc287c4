package model

import "cryptoengine/internal/fixedpoint"

// FootprintBucket aggregates trade flow at one price level within one bar,
// keyed by (symbol, interval, bar-open-time, price-bucket). See
// internal/footprint for the tick-size heuristic that derives price-bucket
// from the current mid-price.
type FootprintBucket struct {
	Symbol      string           `json:"symbol"`
	Provider    string           `json:"provider"`
	Interval    string           `json:"interval"`
	BarOpenTime int64            `json:"barOpenTime"` // epoch seconds
	Price       fixedpoint.Value `json:"price"`        // bucket's tick-aligned price
	BuyVolume   fixedpoint.Value `json:"buyVolume"`
	SellVolume  fixedpoint.Value `json:"sellVolume"`
	TradeCount  int64            `json:"tradeCount"`
}

// Delta returns buy volume minus sell volume at this price level.
func (f *FootprintBucket) Delta() fixedpoint.Value {
	return f.BuyVolume.Sub(f.SellVolume)
}

// Key returns the composite key identifying this bucket's bar:
// "provider:symbol:interval:barOpenTime".
func (f *FootprintBucket) Key() string {
	return f.Provider + ":" + f.Symbol + ":" + f.Interval + ":" + Itoa(int(f.BarOpenTime))
}
