package binance

import (
	"testing"
	"time"

	"cryptoengine/internal/provider"
)

func TestReconnectBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		cap     int
		want    time.Duration
	}{
		{1, 60, 5 * time.Second},
		{2, 60, 10 * time.Second},
		{3, 60, 20 * time.Second},
		{4, 60, 40 * time.Second},
		{5, 60, 60 * time.Second}, // would be 80s uncapped
		{6, 60, 60 * time.Second},
		{1, 30, 5 * time.Second},
		{3, 15, 15 * time.Second}, // would be 20s uncapped
	}
	for _, c := range cases {
		got := reconnectBackoff(c.attempt, c.cap)
		if got != c.want {
			t.Errorf("reconnectBackoff(%d, %d) = %v, want %v", c.attempt, c.cap, got, c.want)
		}
	}
}

func TestHandleKlineEmitsClosedCandle(t *testing.T) {
	c := New(nil, 60)

	var got *provider.Event
	c.SetHandler(func(ev provider.Event) {
		e := ev
		got = &e
	})

	payload := []byte(`{"e":"kline","s":"BTCUSDT","k":{"t":1000,"T":59999,"i":"1m","o":"50000.00000000","h":"50100.00000000","l":"49900.00000000","c":"50050.00000000","v":"12.5","q":"625000.0","n":42,"x":true}}`)
	c.handleMessage(payload)

	if got == nil {
		t.Fatal("expected an event to be emitted")
	}
	if got.Kind != provider.EventCandle {
		t.Fatalf("expected EventCandle, got %v", got.Kind)
	}
	if got.Candle.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %q, want BTCUSDT", got.Candle.Symbol)
	}
	if !got.Candle.Closed {
		t.Error("expected Closed=true")
	}
	if got.Candle.Close.Float64() != 50050.0 {
		t.Errorf("close = %v, want 50050.0", got.Candle.Close.Float64())
	}
}

func TestValidInterval(t *testing.T) {
	if !ValidInterval("1m") {
		t.Error("1m should be valid")
	}
	if !ValidInterval("1M") {
		t.Error("1M should be valid (month)")
	}
	if ValidInterval("2m") {
		t.Error("2m should be invalid")
	}
}

func TestPartialDepthRefusedWhenAmbiguous(t *testing.T) {
	c := New(nil, 60)
	var dropped int
	c.onOrderbookCorrelationDropped = func() { dropped++ }

	payload := []byte(`{"lastUpdateId":100,"bids":[["50000.0","1.0"]],"asks":[["50010.0","1.0"]]}`)

	// Zero active order-book subscriptions: ambiguous, must drop.
	c.handleMessage(payload)
	if dropped != 1 {
		t.Fatalf("expected 1 drop with zero subscriptions, got %d", dropped)
	}

	c.depthSymbols["BTCUSDT"] = struct{}{}
	c.depthSymbols["ETHUSDT"] = struct{}{}
	c.handleMessage(payload)
	if dropped != 2 {
		t.Fatalf("expected 2 drops with two subscriptions, got %d", dropped)
	}
}

func TestPartialDepthCorrelatesSingleSubscription(t *testing.T) {
	c := New(nil, 60)
	c.depthSymbols["BTCUSDT"] = struct{}{}

	var gotSymbol string
	c.SetHandler(func(ev provider.Event) {
		if ev.OrderBook != nil {
			gotSymbol = ev.OrderBook.Symbol
		}
	})

	payload := []byte(`{"lastUpdateId":100,"bids":[["50000.0","1.0"]],"asks":[["50010.0","1.0"]]}`)
	c.handleMessage(payload)

	if gotSymbol != "BTCUSDT" {
		t.Fatalf("expected correlation to BTCUSDT, got %q", gotSymbol)
	}
}

func TestHandleTradeDerivesAggressiveBuy(t *testing.T) {
	c := New(nil, 60)
	var got *provider.Event
	c.SetHandler(func(ev provider.Event) {
		e := ev
		got = &e
	})

	payload := []byte(`{"e":"trade","s":"BTCUSDT","t":12345,"p":"50000.0","q":"0.01","T":1000,"m":false}`)
	c.handleMessage(payload)

	if got == nil || got.Kind != provider.EventTrade {
		t.Fatal("expected a trade event")
	}
	if !got.Trade.AggressiveBuy() {
		t.Error("buyerIsMaker=false should mean aggressive buy")
	}
}
