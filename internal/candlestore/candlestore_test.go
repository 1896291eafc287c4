package candlestore

import (
	"testing"
	"time"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

func mkCandle(openTime time.Time, interval string, closePx float64) model.Candle {
	return model.Candle{
		Symbol:    "BTCUSDT",
		Provider:  "binance",
		Interval:  interval,
		OpenTime:  openTime,
		CloseTime: openTime.Add(time.Minute),
		Open:      fixedpoint.FromFloat64(closePx),
		High:      fixedpoint.FromFloat64(closePx),
		Low:       fixedpoint.FromFloat64(closePx),
		Close:     fixedpoint.FromFloat64(closePx),
		Closed:    true,
	}
}

func TestAddAppendsInOrder(t *testing.T) {
	s := New(0, nil, nil)
	base := time.Unix(0, 0).UTC()
	key := Key("binance", "BTCUSDT", "1m")

	for i := 0; i < 3; i++ {
		c := mkCandle(base.Add(time.Duration(i)*time.Minute), "1m", float64(100+i))
		if res := s.Add(c); res != AddAppended {
			t.Fatalf("candle %d: expected AddAppended, got %v", i, res)
		}
	}
	if s.Len(key) != 3 {
		t.Fatalf("expected 3 candles stored, got %d", s.Len(key))
	}
}

func TestAddRevisesSameOpenTime(t *testing.T) {
	s := New(0, nil, nil)
	base := time.Unix(0, 0).UTC()
	key := Key("binance", "BTCUSDT", "1m")

	s.Add(mkCandle(base, "1m", 100))
	res := s.Add(mkCandle(base, "1m", 105))
	if res != AddRevised {
		t.Fatalf("expected AddRevised, got %v", res)
	}
	last := s.LastN(key, 1)
	if len(last) != 1 || last[0].Close.Float64() != 105 {
		t.Fatalf("expected revised close 105, got %+v", last)
	}
}

func TestAddDetectsGap(t *testing.T) {
	s := New(0, nil, nil)
	base := time.Unix(0, 0).UTC()

	s.Add(mkCandle(base, "1m", 100))
	res := s.Add(mkCandle(base.Add(3*time.Minute), "1m", 110))
	if res != AddGap {
		t.Fatalf("expected AddGap, got %v", res)
	}
}

func TestAddDropsLateCandle(t *testing.T) {
	s := New(0, nil, nil)
	base := time.Unix(0, 0).UTC()
	key := Key("binance", "BTCUSDT", "1m")

	s.Add(mkCandle(base.Add(2*time.Minute), "1m", 100))
	res := s.Add(mkCandle(base, "1m", 90))
	if res != AddLate {
		t.Fatalf("expected AddLate, got %v", res)
	}
	if s.Len(key) != 1 {
		t.Fatalf("late candle must not be stored, got len %d", s.Len(key))
	}
}

func TestGapHookInvoked(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	var gotFrom, gotTo time.Time
	s := New(0, nil, func(key string, missingFrom, missingTo time.Time) {
		gotFrom, gotTo = missingFrom, missingTo
	})

	s.Add(mkCandle(base, "1m", 100))
	s.Add(mkCandle(base.Add(5*time.Minute), "1m", 110))

	if !gotFrom.Equal(base.Add(time.Minute)) {
		t.Errorf("expected missingFrom = %v, got %v", base.Add(time.Minute), gotFrom)
	}
	if !gotTo.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("expected missingTo = %v, got %v", base.Add(4*time.Minute), gotTo)
	}
}

func TestBoundEvictsOldest(t *testing.T) {
	s := New(3, nil, nil)
	base := time.Unix(0, 0).UTC()
	key := Key("binance", "BTCUSDT", "1m")

	for i := 0; i < 5; i++ {
		s.Add(mkCandle(base.Add(time.Duration(i)*time.Minute), "1m", float64(100+i)))
	}
	if s.Len(key) != 3 {
		t.Fatalf("expected bound of 3, got %d", s.Len(key))
	}
	last := s.LastN(key, 3)
	if last[0].Close.Float64() != 102 || last[2].Close.Float64() != 104 {
		t.Fatalf("unexpected window after eviction: %+v", last)
	}
}

func TestHasEnoughData(t *testing.T) {
	s := New(0, nil, nil)
	base := time.Unix(0, 0).UTC()
	key := Key("binance", "BTCUSDT", "1m")

	if s.HasEnoughData(key, 1) {
		t.Fatal("expected false on empty store")
	}
	s.Add(mkCandle(base, "1m", 100))
	s.Add(mkCandle(base.Add(time.Minute), "1m", 101))
	if !s.HasEnoughData(key, 2) {
		t.Fatal("expected true with 2 candles and n=2")
	}
	if s.HasEnoughData(key, 3) {
		t.Fatal("expected false with 2 candles and n=3")
	}
}

func TestRangeFiltersByOpenTime(t *testing.T) {
	s := New(0, nil, nil)
	base := time.Unix(0, 0).UTC()
	key := Key("binance", "BTCUSDT", "1m")

	for i := 0; i < 5; i++ {
		s.Add(mkCandle(base.Add(time.Duration(i)*time.Minute), "1m", float64(100+i)))
	}
	got := s.Range(key, base.Add(time.Minute), base.Add(3*time.Minute))
	if len(got) != 3 {
		t.Fatalf("expected 3 candles in range, got %d", len(got))
	}
	if got[0].Close.Float64() != 101 || got[2].Close.Float64() != 103 {
		t.Fatalf("unexpected range contents: %+v", got)
	}
}

func TestIntervalStepUnknownUnitSkipsGapCheck(t *testing.T) {
	s := New(0, nil, nil)
	base := time.Unix(0, 0).UTC()

	s.Add(mkCandle(base, "1tick", 100))
	res := s.Add(mkCandle(base.Add(time.Hour), "1tick", 110))
	if res != AddAppended {
		t.Fatalf("expected AddAppended for unrecognized interval unit, got %v", res)
	}
}
