// Package execution gates candidate orders through risk checks and fills
// them against the paper trading account (§4.7). There is no live
// brokerage integration.
package execution

import (
	"context"
	"log"
	"time"

	"cryptoengine/internal/model"
	"cryptoengine/internal/portfolio"
)

// FillRecorder persists executed fills to the audit journal.
// Satisfied by store/sqlite.Writer.
type FillRecorder interface {
	RecordFill(order model.Order, ts time.Time) error
}

// OrderResult represents the outcome of a candidate order reaching the
// executor.
type OrderResult struct {
	Order   model.Order `json:"order"`
	Status  string      `json:"status"` // FILLED, REJECTED
	Message string      `json:"message"`
}

// Executor checks each candidate order against the risk manager and, if
// accepted, fills it via the paper account and updates the portfolio.
type Executor struct {
	paper     *PaperExecutor
	risk      *portfolio.RiskManager
	portfolio *portfolio.Portfolio
	journal   FillRecorder
	pnl       *portfolio.PnLTracker
	resultCh  chan OrderResult
}

// NewExecutor creates an Executor. journal and pnl may be nil to skip
// audit persistence / trade-log recording (e.g. in tests).
func NewExecutor(paper *PaperExecutor, risk *portfolio.RiskManager, pf *portfolio.Portfolio, journal FillRecorder, pnl *portfolio.PnLTracker, resultBufferSize int) *Executor {
	return &Executor{
		paper:     paper,
		risk:      risk,
		portfolio: pf,
		journal:   journal,
		pnl:       pnl,
		resultCh:  make(chan OrderResult, resultBufferSize),
	}
}

// Results returns the channel of order results.
func (e *Executor) Results() <-chan OrderResult {
	return e.resultCh
}

// Run consumes candidate orders and executes them.
// Blocks until ctx is cancelled or orderCh is closed.
func (e *Executor) Run(ctx context.Context, orderCh <-chan model.Order) {
	for {
		select {
		case <-ctx.Done():
			return
		case order, ok := <-orderCh:
			if !ok {
				return
			}
			e.execute(order)
		}
	}
}

func (e *Executor) execute(order model.Order) {
	if ok, reason := e.risk.CanTrade(order.Provider, order.Symbol, order.Qty); !ok {
		order.Status = "REJECTED"
		order.UpdatedAt = time.Now().UTC()
		log.Printf("[executor] rejected %s %s %s qty=%s: %s", order.Side, order.Provider, order.Symbol, order.Qty, reason)
		e.resultCh <- OrderResult{Order: order, Status: "REJECTED", Message: reason}
		return
	}

	fill := e.paper.Fill(order)
	order.Status = "FILLED"
	order.FilledQty = order.Qty
	order.AvgPrice = fill.FillPrice
	order.UpdatedAt = fill.FilledAt

	e.portfolio.ApplyFill(order.Provider, order.Symbol, order.Side, order.Qty, fill.FillPrice)

	if e.journal != nil {
		if err := e.journal.RecordFill(order, fill.FilledAt); err != nil {
			log.Printf("[executor] journal write failed for order %s: %v", order.OrderID, err)
		}
	}

	if e.pnl != nil {
		e.pnl.RecordTrade(portfolio.Trade{
			Provider: order.Provider, Symbol: order.Symbol, Action: order.Side,
			Qty: order.Qty, Price: fill.FillPrice, Timestamp: fill.FilledAt,
		})
	}

	log.Printf("[executor] filled %s %s %s qty=%s price=%s (slip=%s) order=%s",
		order.Side, order.Provider, order.Symbol, order.Qty, fill.FillPrice, fill.Slippage, order.OrderID)

	e.resultCh <- OrderResult{Order: order, Status: "FILLED", Message: "filled at " + fill.FillPrice.String()}
}
