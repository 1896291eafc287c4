package strategy

import (
	"log"
	"time"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
	"cryptoengine/internal/provider"

	"github.com/google/uuid"
)

// SMACrossover implements a simple SMA crossover strategy on candle events.
//
// Buy signal: fast SMA crosses above slow SMA (golden cross).
// Sell signal: fast SMA crosses below slow SMA (death cross).
//
// An optional RSI filter suppresses buys when overbought (>70) and sells
// when oversold (<30).
type SMACrossover struct {
	name       string
	provider   string
	symbol     string
	fastPeriod int
	slowPeriod int
	qty        fixedpoint.Value

	fastBuf []float64
	slowBuf []float64
	fastIdx int
	slowIdx int
	fastSum float64
	slowSum float64
	count   int

	prevFast float64
	prevSlow float64
	ready    bool

	rsiEnabled bool
	rsiPeriod  int
	rsiGain    float64
	rsiLoss    float64
	prevClose  float64
	rsiCount   int
	lastRSI    float64
}

// NewSMACrossover creates a new SMA crossover strategy scoped to one
// (provider, symbol). fastPeriod must be less than slowPeriod (e.g. 9, 21).
// qty is the order size placed on each crossover signal.
func NewSMACrossover(providerName, symbol string, fastPeriod, slowPeriod int, qty fixedpoint.Value, enableRSI bool, rsiPeriod int) *SMACrossover {
	return &SMACrossover{
		name:       "SMA_Crossover_" + symbol,
		provider:   providerName,
		symbol:     symbol,
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		qty:        qty,
		fastBuf:    make([]float64, fastPeriod),
		slowBuf:    make([]float64, slowPeriod),
		rsiEnabled: enableRSI,
		rsiPeriod:  rsiPeriod,
	}
}

func (s *SMACrossover) Name() string {
	return s.name
}

// Analyze reacts to candle events for its configured (provider, symbol);
// all other events are ignored. It does not check the Closed flag: each
// candle event it receives counts as one new bar.
func (s *SMACrossover) Analyze(event provider.Event) []model.Order {
	if event.Kind != provider.EventCandle || event.Candle == nil {
		return nil
	}
	candle := *event.Candle
	if candle.Provider != s.provider || candle.Symbol != s.symbol {
		return nil
	}

	price := candle.Close.Float64()
	s.count++

	if s.rsiEnabled && s.count > 1 {
		s.updateRSI(price)
	}
	s.prevClose = price

	s.fastSum -= s.fastBuf[s.fastIdx]
	s.fastBuf[s.fastIdx] = price
	s.fastSum += price
	s.fastIdx = (s.fastIdx + 1) % s.fastPeriod

	s.slowSum -= s.slowBuf[s.slowIdx]
	s.slowBuf[s.slowIdx] = price
	s.slowSum += price
	s.slowIdx = (s.slowIdx + 1) % s.slowPeriod

	if s.count < s.slowPeriod {
		return nil
	}

	fastSMA := s.fastSum / float64(s.fastPeriod)
	slowSMA := s.slowSum / float64(s.slowPeriod)

	defer func() {
		s.prevFast = fastSMA
		s.prevSlow = slowSMA
		s.ready = true
	}()

	if !s.ready {
		return nil
	}

	if s.prevFast <= s.prevSlow && fastSMA > slowSMA {
		if s.rsiEnabled && s.lastRSI > 70 {
			log.Printf("[strategy] %s: golden cross filtered by RSI %.1f > 70", s.name, s.lastRSI)
			return nil
		}
		return []model.Order{s.newOrder("BUY")}
	}

	if s.prevFast >= s.prevSlow && fastSMA < slowSMA {
		if s.rsiEnabled && s.lastRSI < 30 {
			log.Printf("[strategy] %s: death cross filtered by RSI %.1f < 30", s.name, s.lastRSI)
			return nil
		}
		return []model.Order{s.newOrder("SELL")}
	}

	return nil
}

func (s *SMACrossover) newOrder(side string) model.Order {
	now := time.Now().UTC()
	return model.Order{
		OrderID:   uuid.NewString(),
		Symbol:    s.symbol,
		Provider:  s.provider,
		Side:      side,
		OrderType: "MARKET",
		Qty:       s.qty,
		Status:    "PLACED",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *SMACrossover) updateRSI(price float64) {
	change := price - s.prevClose
	s.rsiCount++

	if s.rsiCount <= s.rsiPeriod {
		if change > 0 {
			s.rsiGain += change
		} else {
			s.rsiLoss -= change
		}
		if s.rsiCount == s.rsiPeriod {
			s.rsiGain /= float64(s.rsiPeriod)
			s.rsiLoss /= float64(s.rsiPeriod)
		}
	} else {
		n := float64(s.rsiPeriod)
		if change > 0 {
			s.rsiGain = (s.rsiGain*(n-1) + change) / n
			s.rsiLoss = (s.rsiLoss * (n - 1)) / n
		} else {
			s.rsiGain = (s.rsiGain * (n - 1)) / n
			s.rsiLoss = (s.rsiLoss*(n-1) - change) / n
		}
	}

	if s.rsiLoss == 0 {
		s.lastRSI = 100
	} else {
		rs := s.rsiGain / s.rsiLoss
		s.lastRSI = 100 - (100 / (1 + rs))
	}
}
