package execution

import (
	"testing"
	"time"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
	"cryptoengine/internal/portfolio"
)

type fakeJournal struct {
	recorded []model.Order
}

func (f *fakeJournal) RecordFill(order model.Order, ts time.Time) error {
	f.recorded = append(f.recorded, order)
	return nil
}

func TestExecutorFillsAcceptedOrder(t *testing.T) {
	pf := portfolio.New()
	risk := portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), pf)
	paper := NewPaperExecutor(fixedpoint.Zero)
	paper.UpdatePrice("binance", "BTCUSDT", fixedpoint.FromInt(50000))
	journal := &fakeJournal{}
	pnl := portfolio.NewPnLTracker()

	ex := NewExecutor(paper, risk, pf, journal, pnl, 8)
	ex.execute(model.Order{OrderID: "o1", Provider: "binance", Symbol: "BTCUSDT", Side: "BUY", OrderType: "MARKET", Qty: fixedpoint.FromInt(1)})

	result := <-ex.Results()
	if result.Status != "FILLED" {
		t.Fatalf("status = %s, want FILLED", result.Status)
	}
	if len(journal.recorded) != 1 {
		t.Fatalf("expected 1 journal record, got %d", len(journal.recorded))
	}

	pos, ok := pf.Position("binance", "BTCUSDT")
	if !ok || !pos.Qty.Equal(fixedpoint.FromInt(1)) {
		t.Fatalf("expected position qty 1, got %+v (ok=%v)", pos, ok)
	}
	if len(pnl.GetTrades()) != 1 {
		t.Fatalf("expected 1 recorded trade, got %d", len(pnl.GetTrades()))
	}
}

func TestExecutorRejectsOversizedOrder(t *testing.T) {
	pf := portfolio.New()
	limits := portfolio.DefaultRiskLimits()
	limits.MaxPositionSize = fixedpoint.FromInt(1)
	risk := portfolio.NewRiskManager(limits, pf)
	paper := NewPaperExecutor(fixedpoint.Zero)
	paper.UpdatePrice("binance", "BTCUSDT", fixedpoint.FromInt(50000))

	ex := NewExecutor(paper, risk, pf, nil, nil, 8)
	ex.execute(model.Order{OrderID: "o2", Provider: "binance", Symbol: "BTCUSDT", Side: "BUY", OrderType: "MARKET", Qty: fixedpoint.FromInt(5)})

	result := <-ex.Results()
	if result.Status != "REJECTED" {
		t.Fatalf("status = %s, want REJECTED", result.Status)
	}
	if _, ok := pf.Position("binance", "BTCUSDT"); ok {
		t.Fatal("rejected order must not open a position")
	}
}
