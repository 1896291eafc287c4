package execution

import (
	"sync"
	"time"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
)

// Fill represents a simulated order fill.
type Fill struct {
	Order     model.Order      `json:"order"`
	FillPrice fixedpoint.Value `json:"fillPrice"`
	Slippage  fixedpoint.Value `json:"slippage"`
	FilledAt  time.Time        `json:"filledAt"`
}

// PaperExecutor simulates execution against the last observed market price.
// There is no live brokerage integration (§4.7 non-goal); every order is
// filled in-process against streamed market data.
type PaperExecutor struct {
	slippageBps fixedpoint.Value

	mu        sync.RWMutex
	lastPrice map[string]fixedpoint.Value
}

// NewPaperExecutor creates a paper trading executor. slippageBps controls
// simulated slippage in basis points (e.g. 5 = 0.05%).
func NewPaperExecutor(slippageBps fixedpoint.Value) *PaperExecutor {
	return &PaperExecutor{
		slippageBps: slippageBps,
		lastPrice:   make(map[string]fixedpoint.Value),
	}
}

// UpdatePrice records the latest observed trade or candle close for a
// symbol, used to fill market orders that carry no explicit price.
func (p *PaperExecutor) UpdatePrice(provider, symbol string, price fixedpoint.Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrice[provider+":"+symbol] = price
}

func (p *PaperExecutor) priceFor(provider, symbol string) fixedpoint.Value {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPrice[provider+":"+symbol]
}

// Fill simulates execution of a candidate order, applying simulated
// slippage: market orders (or any order with no limit price) fill at the
// last observed market price, worsened by slippageBps in the order's
// direction.
func (p *PaperExecutor) Fill(order model.Order) Fill {
	price := order.Price
	if order.OrderType == "MARKET" || price.IsZero() {
		price = p.priceFor(order.Provider, order.Symbol)
	}

	slippage := fixedpoint.Zero
	if !price.IsZero() && !p.slippageBps.IsZero() {
		slippage = price.Mul(p.slippageBps).Div(fixedpoint.FromInt(10000))
		if order.Side == "BUY" {
			price = price.Add(slippage)
		} else {
			price = price.Sub(slippage)
		}
	}

	return Fill{Order: order, FillPrice: price, Slippage: slippage, FilledAt: time.Now().UTC()}
}
