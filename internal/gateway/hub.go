package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"cryptoengine/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub is the session registry and fan-out point for all three logical
// endpoints (order-flow, trading, indicator). Each outbound event is
// serialized once and handed to every session whose filters accept it;
// a session's send is non-blocking, so one slow session never stalls
// another or the ingress path.
type Hub struct {
	providers []string
	intervals []string
	stats     *StatsRegistry
	latency   *LatencyTracker

	mu         sync.RWMutex
	clients    map[*Client]bool
	seq        int64
	replayBufs map[string]*ReplayBuffer
}

// NewHub creates a Hub advertising the given provider/interval set (answers
// to getProviders/getIntervals control messages).
func NewHub(providers, intervals []string) *Hub {
	return &Hub{
		providers:  providers,
		intervals:  intervals,
		stats:      NewStatsRegistry(),
		latency:    NewLatencyTracker(10000),
		clients:    make(map[*Client]bool),
		replayBufs: make(map[string]*ReplayBuffer),
	}
}

// Upgrade promotes an already-upgraded *websocket.Conn to a tracked Client
// on the given endpoint and starts its read/write pumps.
func (h *Hub) Upgrade(conn *websocket.Conn, endpoint Endpoint) *Client {
	client := newClient(h, conn, endpoint, uuid.NewString())
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	n := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] client connected on %s endpoint (%d total)", endpoint, n)

	go client.writePump()
	client.sendWelcome()
	go client.readPump()
	return client
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// ClientCount returns the number of connected sessions across all endpoints.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnTrade updates running stats and fans the trade out to both the
// order-flow endpoint and the general trading endpoint.
func (h *Hub) OnTrade(t model.Trade) {
	h.stats.OnTrade(t)

	dataType := "TRADE"
	if t.IsAggregate {
		dataType = "AGGREGATE_TRADE"
	}
	h.broadcastOrderFlow(OrderFlowEnvelope{
		Type: "orderFlow", DataType: dataType, Symbol: t.Symbol, Provider: t.Provider,
		Timestamp: t.TS.UnixMilli(), Trade: &t,
	}, t.Symbol, dataType)

	h.broadcastTrading(TradingDataEnvelope{
		Type: "tradingData", DataType: dataType, Symbol: t.Symbol, Trade: &t,
	}, t.Symbol)
}

// OnOrderBook updates running stats and fans a book snapshot out.
func (h *Hub) OnOrderBook(b model.OrderBookSnapshot) {
	h.stats.OnOrderBook(b)

	h.broadcastOrderFlow(OrderFlowEnvelope{
		Type: "orderFlow", DataType: "ORDER_BOOK", Symbol: b.Symbol, Provider: b.Provider,
		Timestamp: b.TS, OrderBook: &b,
	}, b.Symbol, "ORDER_BOOK")

	h.broadcastTrading(TradingDataEnvelope{
		Type: "tradingData", DataType: "ORDER_BOOK", Symbol: b.Symbol, OrderBook: &b,
	}, b.Symbol)
}

// OnBookTicker fans a best-bid/ask snapshot out, tagged distinctly from a
// full order-book snapshot so order-flow sessions filtering on BOOK_TICKER
// (§4.6) receive it and sessions filtering on ORDER_BOOK alone do not.
func (h *Hub) OnBookTicker(b model.OrderBookSnapshot) {
	h.stats.OnOrderBook(b)

	h.broadcastOrderFlow(OrderFlowEnvelope{
		Type: "orderFlow", DataType: "BOOK_TICKER", Symbol: b.Symbol, Provider: b.Provider,
		Timestamp: b.TS, OrderBook: &b,
	}, b.Symbol, "BOOK_TICKER")

	h.broadcastTrading(TradingDataEnvelope{
		Type: "tradingData", DataType: "BOOK_TICKER", Symbol: b.Symbol, OrderBook: &b,
	}, b.Symbol)
}

// OnCandle fans an in-progress or closed candle out to the trading endpoint.
func (h *Hub) OnCandle(c model.Candle) {
	h.broadcastTrading(TradingDataEnvelope{
		Type: "tradingData", DataType: "CANDLE", Symbol: c.Symbol, Candlestick: &c,
	}, c.Symbol)
}

// OnIndicatorResult fans an indicator result out to the indicator endpoint,
// choosing the envelope variant by which data type drove the update.
func (h *Hub) OnIndicatorResult(r model.IndicatorResult, driver string) {
	switch driver {
	case "trade", "aggregateTrade":
		h.broadcastIndicator(IndicatorTradeEnvelope{
			Type: "indicatorTrade", InstanceKey: r.InstanceKey, Values: r.Values, Shapes: r.Shapes,
		}, r.Symbol)
	case "orderBook":
		h.broadcastIndicator(IndicatorOrderBookEnvelope{
			Type: "indicatorOrderBook", InstanceKey: r.InstanceKey, Values: r.Values, Shapes: r.Shapes,
		}, r.Symbol)
	default:
		h.broadcastIndicator(IndicatorUpdateEnvelope{
			Type: "indicatorUpdate", InstanceKey: r.InstanceKey, Values: r.Values, Shapes: r.Shapes,
		}, r.Symbol)
	}
}

// OnReplayUpdate fans a replay-driver tick out to the trading endpoint.
func (h *Hub) OnReplayUpdate(env ReplayUpdateEnvelope) {
	symbol := ""
	if env.Candle != nil {
		symbol = env.Candle.Symbol
	}
	h.broadcastTrading(env, symbol)
}

func (h *Hub) broadcastOrderFlow(env OrderFlowEnvelope, symbol, dataType string) {
	h.deliver("orderFlow:"+symbol, env, EndpointOrderFlow, func(s *model.Session) bool {
		return s.Matches(symbol, dataType)
	})
}

func (h *Hub) broadcastTrading(env interface{}, symbol string) {
	h.deliver("trading:"+symbol, env, EndpointTrading, func(s *model.Session) bool {
		return s.Matches(symbol, "")
	})
}

func (h *Hub) broadcastIndicator(env interface{}, symbol string) {
	h.deliver("indicator:"+symbol, env, EndpointIndicator, func(s *model.Session) bool {
		return s.Matches(symbol, "")
	})
}

// deliver serializes env once, records it for reconnect replay, and fans it
// out to every session on the given endpoint whose filter accepts it.
func (h *Hub) deliver(channel string, env interface{}, endpoint Endpoint, match func(*model.Session) bool) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	now := time.Now().UTC()
	if srcTS := extractTS(data); !srcTS.IsZero() {
		if ms := float64(now.Sub(srcTS).Microseconds()) / 1000.0; ms >= 0 {
			h.latency.Record(ms)
		}
	}

	h.mu.Lock()
	h.seq++
	seq := h.seq
	rb, ok := h.replayBufs[channel]
	if !ok {
		rb = NewReplayBuffer(500)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()
	rb.Push(seq, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.endpoint != endpoint {
			continue
		}
		if !match(c.session) {
			continue
		}
		select {
		case c.send <- data:
			c.session.Touch(now)
		default:
			// backpressure: drop for this send, writePump's deadline will
			// eventually remove a session that stays behind
		}
	}
}

// extractTS pulls a millisecond epoch "timestamp" field out of an envelope
// for end-to-end latency measurement, if present.
func extractTS(data []byte) time.Time {
	var partial struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &partial); err == nil && partial.Timestamp > 0 {
		return time.UnixMilli(partial.Timestamp)
	}
	return time.Time{}
}

// LatencySnapshot returns the current p50/p95/p99 end-to-end delivery
// latency in milliseconds.
func (h *Hub) LatencySnapshot() (p50, p95, p99 float64) {
	return h.latency.Percentiles()
}
