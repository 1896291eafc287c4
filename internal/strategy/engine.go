// Package strategy provides the pluggable analysis layer for the bot (C8).
//
// A Strategy receives every normalized market event and may emit candidate
// orders; the spec explicitly leaves strategy internals unspecified ("the
// implementer treats this as a pluggable consumer"), so Engine only owns
// dispatch, not strategy semantics.
package strategy

import (
	"context"

	"cryptoengine/internal/model"
	"cryptoengine/internal/provider"
)

// Strategy is the interface every pluggable trading strategy implements.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Analyze inspects one normalized event and returns zero or more
	// candidate orders. Called for every event the engine is fed,
	// regardless of kind; strategies that only care about one kind check
	// event.Kind and return nil otherwise.
	Analyze(event provider.Event) []model.Order
}

// Engine manages registered strategies and routes every normalized event to
// each of them, collecting candidate orders onto a single channel for the
// risk/execution layer to consume.
type Engine struct {
	strategies []Strategy
	orderCh    chan model.Order
}

// NewEngine creates a new strategy engine with the given candidate-order
// buffer size.
func NewEngine(orderBufferSize int) *Engine {
	return &Engine{orderCh: make(chan model.Order, orderBufferSize)}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Orders returns the channel of candidate orders emitted by strategies.
func (e *Engine) Orders() <-chan model.Order {
	return e.orderCh
}

// Feed dispatches one event to every registered strategy, non-blocking:
// an order that cannot be enqueued immediately is dropped rather than
// stalling the ingress path.
func (e *Engine) Feed(event provider.Event) {
	for _, s := range e.strategies {
		for _, order := range s.Analyze(event) {
			select {
			case e.orderCh <- order:
			default:
			}
		}
	}
}

// Run consumes events from eventCh and feeds each to every registered
// strategy. Blocks until ctx is cancelled or eventCh is closed.
func (e *Engine) Run(ctx context.Context, eventCh <-chan provider.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			e.Feed(event)
		}
	}
}
