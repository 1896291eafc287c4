package footprint

import (
	"testing"
	"time"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

func trade(price, qty float64, ts time.Time, aggressiveBuy bool) model.Trade {
	return model.Trade{
		Symbol:       "BTCUSDT",
		Provider:     "binance",
		Price:        fixedpoint.FromFloat64(price),
		Qty:          fixedpoint.FromFloat64(qty),
		TS:           ts,
		BuyerIsMaker: !aggressiveBuy,
	}
}

func TestTickSizeOrderOfMagnitude(t *testing.T) {
	minTick := fixedpoint.FromFloat64(0.00000001)

	btc := TickSize(fixedpoint.FromFloat64(60000), minTick)
	if btc.Float64() != 100 {
		t.Errorf("BTC tick = %v, want 100", btc.Float64())
	}

	alt := TickSize(fixedpoint.FromFloat64(0.50), minTick)
	if alt.Float64() != 0.001 {
		t.Errorf("altcoin tick = %v, want 0.001", alt.Float64())
	}
}

func TestTickSizeClampedToMinimum(t *testing.T) {
	minTick := fixedpoint.FromFloat64(0.01)
	tiny := TickSize(fixedpoint.FromFloat64(0.0001), minTick)
	if tiny.Float64() != 0.01 {
		t.Errorf("tick = %v, want clamped min 0.01", tiny.Float64())
	}
}

func TestOnTradeSplitsBuySell(t *testing.T) {
	a := New(0, fixedpoint.Value{})
	ts := time.Unix(0, 0).UTC()
	mid := fixedpoint.FromFloat64(60000)

	a.OnTrade(trade(60001, 1.0, ts, true), "1m", mid)
	a.OnTrade(trade(60001, 0.5, ts.Add(time.Second), false), "1m", mid)

	key := "binance:BTCUSDT:1m"
	bucks := a.LastBar(key)
	if len(bucks) != 1 {
		t.Fatalf("expected 1 price bucket, got %d", len(bucks))
	}
	b := bucks[0]
	if b.BuyVolume.Float64() != 1.0 {
		t.Errorf("buy volume = %v, want 1.0", b.BuyVolume.Float64())
	}
	if b.SellVolume.Float64() != 0.5 {
		t.Errorf("sell volume = %v, want 0.5", b.SellVolume.Float64())
	}
	if b.TradeCount != 2 {
		t.Errorf("trade count = %d, want 2", b.TradeCount)
	}
	if b.Delta().Float64() != 0.5 {
		t.Errorf("delta = %v, want 0.5", b.Delta().Float64())
	}
}

func TestOnTradeSeparatesPriceBuckets(t *testing.T) {
	a := New(0, fixedpoint.Value{})
	ts := time.Unix(0, 0).UTC()
	mid := fixedpoint.FromFloat64(60000)

	a.OnTrade(trade(60000, 1.0, ts, true), "1m", mid)  // tick=100, bucket price 60000
	a.OnTrade(trade(60150, 1.0, ts, true), "1m", mid)  // rounds to 60200

	bucks := a.LastBar("binance:BTCUSDT:1m")
	if len(bucks) != 2 {
		t.Fatalf("expected 2 distinct price buckets, got %d", len(bucks))
	}
	if bucks[0].Price.Float64() >= bucks[1].Price.Float64() {
		t.Errorf("expected ascending price order, got %v then %v", bucks[0].Price.Float64(), bucks[1].Price.Float64())
	}
}

func TestOnTradeNewBarStartsFresh(t *testing.T) {
	a := New(0, fixedpoint.Value{})
	ts := time.Unix(0, 0).UTC()
	mid := fixedpoint.FromFloat64(60000)

	a.OnTrade(trade(60000, 1.0, ts, true), "1m", mid)
	a.OnTrade(trade(60000, 1.0, ts.Add(2*time.Minute), true), "1m", mid)

	key := "binance:BTCUSDT:1m"
	if a.BarCount(key) != 2 {
		t.Fatalf("expected 2 bars, got %d", a.BarCount(key))
	}
}

func TestBarRetentionEvicts(t *testing.T) {
	a := New(2, fixedpoint.Value{})
	mid := fixedpoint.FromFloat64(60000)
	base := time.Unix(0, 0).UTC()

	for i := 0; i < 5; i++ {
		a.OnTrade(trade(60000, 1.0, base.Add(time.Duration(i)*time.Minute), true), "1m", mid)
	}
	key := "binance:BTCUSDT:1m"
	if a.BarCount(key) != 2 {
		t.Fatalf("expected bound of 2 bars, got %d", a.BarCount(key))
	}
}
