package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

func TestOrderFlowEnvelopeJSON(t *testing.T) {
	trade := model.Trade{
		ID: 1, Symbol: "BTCUSDT", Provider: "binance",
		Price: fixedpoint.FromInt(50000), Qty: fixedpoint.FromInt(1),
		TS: time.Now().UTC(),
	}
	env := OrderFlowEnvelope{
		Type: "orderFlow", DataType: "TRADE", Symbol: "BTCUSDT", Provider: "binance",
		Timestamp: trade.TS.UnixMilli(), Trade: &trade,
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "orderFlow" {
		t.Errorf("type: got %v, want orderFlow", decoded["type"])
	}
	if decoded["dataType"] != "TRADE" {
		t.Errorf("dataType: got %v, want TRADE", decoded["dataType"])
	}
	if _, ok := decoded["trade"]; !ok {
		t.Error("expected trade sub-object present")
	}
	if _, ok := decoded["orderBook"]; ok {
		t.Error("expected orderBook omitted when nil")
	}
}

func TestExtractTSFromEnvelope(t *testing.T) {
	now := time.Now().UTC()
	data, _ := json.Marshal(map[string]interface{}{"timestamp": now.UnixMilli()})

	got := extractTS(data)
	if got.IsZero() {
		t.Fatal("expected non-zero extracted timestamp")
	}
	if diff := got.Sub(now); diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("extracted ts off by %v", diff)
	}
}

func TestExtractTSMissing(t *testing.T) {
	data := []byte(`{"type":"indicatorUpdate"}`)
	if got := extractTS(data); !got.IsZero() {
		t.Errorf("expected zero time for missing timestamp, got %v", got)
	}
}

func TestHubDeliverRecordsReplayWithoutClients(t *testing.T) {
	hub := NewHub([]string{"binance"}, []string{"1m"})

	var delivered int
	match := func(s *model.Session) bool { return s.Matches("BTCUSDT", "") }

	// No clients registered: delivery must not panic and must still record
	// the envelope in the replay buffer for later gap-fill.
	hub.deliver("trading:BTCUSDT", map[string]string{"type": "tradingData"}, EndpointTrading, match)

	hub.mu.RLock()
	rb, ok := hub.replayBufs["trading:BTCUSDT"]
	hub.mu.RUnlock()
	if !ok {
		t.Fatal("expected replay buffer to be created for channel")
	}
	if rb.Len() != 1 {
		t.Fatalf("replay buffer len = %d, want 1", rb.Len())
	}
	_ = delivered
}

func TestIsSupportedType(t *testing.T) {
	for _, good := range supportedTypes {
		if !isSupportedType(good) {
			t.Errorf("isSupportedType(%q) = false, want true", good)
		}
	}
	if isSupportedType("GARBAGE") {
		t.Error("isSupportedType(\"GARBAGE\") = true, want false")
	}
}

func TestOnBookTickerDistinctFromOrderBook(t *testing.T) {
	hub := NewHub([]string{"binance"}, []string{"1m"})
	snap := model.OrderBookSnapshot{Symbol: "BTCUSDT", Provider: "binance", TS: time.Now().UnixMilli()}

	hub.OnBookTicker(snap)

	hub.mu.RLock()
	rb, hasOrderFlow := hub.replayBufs["orderFlow:BTCUSDT"]
	hub.mu.RUnlock()
	if !hasOrderFlow {
		t.Fatal("expected orderFlow replay buffer to be created for BTCUSDT")
	}
	entries := rb.Range(1, 1<<62)
	if len(entries) != 1 {
		t.Fatalf("orderFlow replay entries = %d, want 1", len(entries))
	}
	var env map[string]interface{}
	if err := json.Unmarshal(entries[0].Data, &env); err != nil {
		t.Fatalf("unmarshal orderFlow envelope: %v", err)
	}
	if env["dataType"] != "BOOK_TICKER" {
		t.Errorf("orderFlow dataType = %v, want BOOK_TICKER", env["dataType"])
	}
}

func TestStatsRegistryAggregatesTrades(t *testing.T) {
	reg := NewStatsRegistry()
	reg.OnTrade(model.Trade{Symbol: "BTCUSDT", Price: fixedpoint.FromInt(100), Qty: fixedpoint.FromInt(2), BuyerIsMaker: false})
	reg.OnTrade(model.Trade{Symbol: "BTCUSDT", Price: fixedpoint.FromInt(101), Qty: fixedpoint.FromInt(3), BuyerIsMaker: true})

	snap := reg.Snapshot("BTCUSDT")
	if snap.TradeCount != 2 {
		t.Errorf("tradeCount: got %d, want 2", snap.TradeCount)
	}
	if !snap.BuyVolume.Equal(fixedpoint.FromInt(2)) {
		t.Errorf("buyVolume: got %s, want 2", snap.BuyVolume)
	}
	if !snap.SellVolume.Equal(fixedpoint.FromInt(3)) {
		t.Errorf("sellVolume: got %s, want 3", snap.SellVolume)
	}
}
