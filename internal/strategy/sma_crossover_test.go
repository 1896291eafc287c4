package strategy

import (
	"testing"
	"time"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
	"cryptoengine/internal/provider"
)

func candleEvent(provider_, symbol string, close float64, ts time.Time) provider.Event {
	c := model.Candle{
		Provider: provider_, Symbol: symbol, Interval: "1m",
		Open: fixedpoint.FromFloat64(close), High: fixedpoint.FromFloat64(close),
		Low: fixedpoint.FromFloat64(close), Close: fixedpoint.FromFloat64(close),
		OpenTime: ts,
	}
	return provider.Event{Kind: provider.EventCandle, Candle: &c}
}

func TestSMACrossoverGoldenCross(t *testing.T) {
	s := NewSMACrossover("binance", "BTCUSDT", 2, 4, fixedpoint.FromInt(1), false, 0)

	prices := []float64{100, 100, 100, 100, 120, 140}
	var orders []model.Order
	now := time.Now().UTC()
	for i, p := range prices {
		ev := candleEvent("binance", "BTCUSDT", p, now.Add(time.Duration(i)*time.Minute))
		orders = append(orders, s.Analyze(ev)...)
	}

	if len(orders) == 0 {
		t.Fatal("expected at least one crossover order")
	}
	if orders[0].Side != "BUY" {
		t.Errorf("expected BUY order on golden cross, got %s", orders[0].Side)
	}
}

func TestSMACrossoverIgnoresOtherSymbols(t *testing.T) {
	s := NewSMACrossover("binance", "BTCUSDT", 2, 4, fixedpoint.FromInt(1), false, 0)
	ev := candleEvent("binance", "ETHUSDT", 100, time.Now().UTC())
	if orders := s.Analyze(ev); orders != nil {
		t.Errorf("expected nil for non-matching symbol, got %v", orders)
	}
}

func TestSMACrossoverIgnoresNonCandleEvents(t *testing.T) {
	s := NewSMACrossover("binance", "BTCUSDT", 2, 4, fixedpoint.FromInt(1), false, 0)
	ev := provider.Event{Kind: provider.EventTrade, Trade: &model.Trade{Symbol: "BTCUSDT", Provider: "binance"}}
	if orders := s.Analyze(ev); orders != nil {
		t.Errorf("expected nil for trade event, got %v", orders)
	}
}

func TestEngineFeedDispatchesToAllStrategies(t *testing.T) {
	e := NewEngine(16)
	e.Register(NewSMACrossover("binance", "BTCUSDT", 2, 4, fixedpoint.FromInt(1), false, 0))

	prices := []float64{100, 100, 100, 100, 120, 140}
	now := time.Now().UTC()
	for i, p := range prices {
		e.Feed(candleEvent("binance", "BTCUSDT", p, now.Add(time.Duration(i)*time.Minute)))
	}

	select {
	case order := <-e.Orders():
		if order.Symbol != "BTCUSDT" {
			t.Errorf("order symbol = %s, want BTCUSDT", order.Symbol)
		}
	default:
		t.Fatal("expected an order on the engine's channel")
	}
}
