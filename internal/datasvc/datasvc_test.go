package datasvc

import (
	"context"
	"testing"

	"cryptoengine/internal/model"
	"cryptoengine/internal/provider"
)

type fakeProvider struct {
	handler provider.Handler
}

func (f *fakeProvider) Connect(ctx context.Context) error { return nil }
func (f *fakeProvider) Disconnect() error                 { return nil }
func (f *fakeProvider) SubscribeTicker(string) error       { return nil }
func (f *fakeProvider) SubscribeKline(string, string) error { return nil }
func (f *fakeProvider) SubscribeTrade(string) error         { return nil }
func (f *fakeProvider) SubscribeAggTrade(string) error      { return nil }
func (f *fakeProvider) SubscribeDepth(string) error         { return nil }
func (f *fakeProvider) SubscribeBookTicker(string) error    { return nil }
func (f *fakeProvider) UnsubscribeTicker(string) error       { return nil }
func (f *fakeProvider) UnsubscribeKline(string, string) error { return nil }
func (f *fakeProvider) UnsubscribeTrade(string) error         { return nil }
func (f *fakeProvider) UnsubscribeAggTrade(string) error      { return nil }
func (f *fakeProvider) UnsubscribeDepth(string) error         { return nil }
func (f *fakeProvider) UnsubscribeBookTicker(string) error    { return nil }
func (f *fakeProvider) HistoricalKlines(context.Context, string, string, int) ([]model.Candle, error) {
	return nil, nil
}
func (f *fakeProvider) HistoricalKlinesRange(context.Context, string, string, int64, int64) ([]model.Candle, error) {
	return nil, nil
}
func (f *fakeProvider) SetHandler(h provider.Handler) { f.handler = h }

func TestRegisterAndForward(t *testing.T) {
	svc := New()
	fp := &fakeProvider{}
	svc.RegisterProvider("binance", fp)

	var received []provider.Event
	svc.SetHandler(func(ev provider.Event) {
		received = append(received, ev)
	})

	candle := model.Candle{Symbol: "BTCUSDT", Provider: "binance"}
	fp.handler(provider.Event{Kind: provider.EventCandle, Candle: &candle})

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Candle.Symbol != "BTCUSDT" {
		t.Errorf("unexpected candle: %+v", received[0].Candle)
	}
}

func TestProviderLookup(t *testing.T) {
	svc := New()
	svc.RegisterProvider("binance", &fakeProvider{})

	if _, err := svc.Provider("binance"); err != nil {
		t.Fatalf("expected binance provider, got err: %v", err)
	}
	if _, err := svc.Provider("coinbase"); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	names := svc.Providers()
	if len(names) != 1 || names[0] != "binance" {
		t.Errorf("unexpected provider names: %v", names)
	}
}
