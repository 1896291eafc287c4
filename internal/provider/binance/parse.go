package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"
	"cryptoengine/internal/provider"
)

// combinedStreamEnvelope wraps every message received on the combined
// stream endpoint: {"stream":"btcusdt@kline_1m","data":{...}}.
type combinedStreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// handleMessage dispatches one raw WebSocket frame by its event
// discriminator (§6): kline, 24hrTicker, trade, aggTrade, depthUpdate,
// bookTicker, or (structurally) a partial-depth snapshot carrying
// lastUpdateId with no event field.
func (c *Client) handleMessage(raw []byte) {
	var env combinedStreamEnvelope
	data := raw
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		data = env.Data
	}

	var disc struct {
		Event        string `json:"e"`
		LastUpdateID int64  `json:"lastUpdateId"`
		Result       any    `json:"result"`
		ID           int64  `json:"id"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return
	}

	// SUBSCRIBE/UNSUBSCRIBE acknowledgements: {"result":null,"id":N}.
	if disc.Event == "" && disc.LastUpdateID == 0 && disc.ID != 0 {
		return
	}

	switch disc.Event {
	case "kline":
		c.handleKline(data)
	case "24hrTicker":
		c.handleTicker(data)
	case "trade":
		c.handleTrade(data, false)
	case "aggTrade":
		c.handleTrade(data, true)
	case "depthUpdate":
		c.handleDepthUpdate(data)
	case "bookTicker":
		c.handleBookTicker(data)
	default:
		if disc.LastUpdateID != 0 {
			c.handlePartialDepth(data)
		}
	}
}

func (c *Client) emit(ev provider.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

type wsKlinePayload struct {
	Symbol string `json:"s"`
	Kline  struct {
		StartTime  int64  `json:"t"`
		CloseTime  int64  `json:"T"`
		Interval   string `json:"i"`
		Open       string `json:"o"`
		Close      string `json:"c"`
		High       string `json:"h"`
		Low        string `json:"l"`
		Volume     string `json:"v"`
		QuoteVol   string `json:"q"`
		TradeCount int64  `json:"n"`
		IsClosed   bool   `json:"x"`
	} `json:"k"`
}

func (c *Client) handleKline(data []byte) {
	var p wsKlinePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	candle, err := buildCandle(p.Symbol, p.Kline.Interval, p.Kline.StartTime, p.Kline.CloseTime,
		p.Kline.Open, p.Kline.High, p.Kline.Low, p.Kline.Close, p.Kline.Volume, p.Kline.QuoteVol,
		p.Kline.TradeCount, p.Kline.IsClosed)
	if err != nil {
		return
	}
	c.emit(provider.Event{Kind: provider.EventCandle, Candle: &candle})
}

type wsTickerPayload struct {
	Symbol string `json:"s"`
	Last   string `json:"c"`
}

// handleTicker parses 24hrTicker updates and discards them: no event is
// emitted and nothing downstream receives them.
func (c *Client) handleTicker(data []byte) {
	var p wsTickerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	_ = p
}

type wsTradePayload struct {
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
}

func (c *Client) handleTrade(data []byte, aggregate bool) {
	var p wsTradePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	price, err := fixedpoint.FromString(p.Price)
	if err != nil {
		return
	}
	qty, err := fixedpoint.FromString(p.Qty)
	if err != nil {
		return
	}
	trade := model.Trade{
		ID:           p.TradeID,
		Symbol:       p.Symbol,
		Provider:     "binance",
		Price:        price,
		Qty:          qty,
		QuoteQty:     price.Mul(qty),
		TS:           time.UnixMilli(p.TradeTime).UTC(),
		BuyerIsMaker: p.IsBuyerMaker,
		IsAggregate:  aggregate,
		FirstTradeID: p.FirstTradeID,
		LastTradeID:  p.LastTradeID,
	}
	c.emit(provider.Event{Kind: provider.EventTrade, Trade: &trade})
}

type wsDepthUpdatePayload struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
	FinalUpdateID int64 `json:"u"`
}

func (c *Client) handleDepthUpdate(data []byte) {
	var p wsDepthUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	snap := buildOrderBook(p.Symbol, p.FinalUpdateID, p.Bids, p.Asks)
	c.emit(provider.Event{Kind: provider.EventOrderBook, OrderBook: &snap})
}

type wsPartialDepthPayload struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// handlePartialDepth implements the §4.1 DECISION: partial-depth messages
// that carry no symbol must be correlated with the currently subscribed
// order-book set. Refused (dropped + counted) unless exactly one symbol is
// subscribed.
func (c *Client) handlePartialDepth(data []byte) {
	var p wsPartialDepthPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}

	c.mu.Lock()
	var symbol string
	ambiguous := len(c.depthSymbols) != 1
	if !ambiguous {
		for s := range c.depthSymbols {
			symbol = s
		}
	}
	hook := c.onOrderbookCorrelationDropped
	c.mu.Unlock()

	if ambiguous {
		if hook != nil {
			hook()
		}
		if c.log != nil {
			c.log.Warn("binance: dropping ambiguous partial-depth message", "active_subscriptions", len(c.depthSymbols))
		}
		return
	}

	snap := buildOrderBook(symbol, p.LastUpdateID, p.Bids, p.Asks)
	c.emit(provider.Event{Kind: provider.EventOrderBook, OrderBook: &snap})
}

type wsBookTickerPayload struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

func (c *Client) handleBookTicker(data []byte) {
	var p wsBookTickerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	bid, err1 := parseLevel(p.BidPrice, p.BidQty)
	ask, err2 := parseLevel(p.AskPrice, p.AskQty)
	if err1 != nil || err2 != nil {
		return
	}
	snap := model.OrderBookSnapshot{
		Symbol:   p.Symbol,
		Provider: "binance",
		TS:       time.Now().UnixMilli(),
		Bids:     []model.PriceLevel{bid},
		Asks:     []model.PriceLevel{ask},
	}
	c.emit(provider.Event{Kind: provider.EventBookTicker, OrderBook: &snap})
}

func parseLevel(price, qty string) (model.PriceLevel, error) {
	p, err := fixedpoint.FromString(price)
	if err != nil {
		return model.PriceLevel{}, err
	}
	q, err := fixedpoint.FromString(qty)
	if err != nil {
		return model.PriceLevel{}, err
	}
	return model.PriceLevel{Price: p, Qty: q}, nil
}

func buildOrderBook(symbol string, updateID int64, rawBids, rawAsks [][]string) model.OrderBookSnapshot {
	return model.OrderBookSnapshot{
		Symbol:   symbol,
		Provider: "binance",
		UpdateID: updateID,
		TS:       time.Now().UnixMilli(),
		Bids:     parseLevels(rawBids),
		Asks:     parseLevels(rawAsks),
	}
}

func parseLevels(raw [][]string) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			continue
		}
		lvl, err := parseLevel(row[0], row[1])
		if err != nil {
			continue
		}
		out = append(out, lvl)
	}
	return out
}

func buildCandle(symbol, interval string, startMs, closeMs int64, open, high, low, cl, vol, quoteVol string,
	tradeCount int64, closed bool) (model.Candle, error) {
	o, err := fixedpoint.FromString(open)
	if err != nil {
		return model.Candle{}, err
	}
	h, err := fixedpoint.FromString(high)
	if err != nil {
		return model.Candle{}, err
	}
	l, err := fixedpoint.FromString(low)
	if err != nil {
		return model.Candle{}, err
	}
	c, err := fixedpoint.FromString(cl)
	if err != nil {
		return model.Candle{}, err
	}
	v, err := fixedpoint.FromString(vol)
	if err != nil {
		return model.Candle{}, err
	}
	qv, err := fixedpoint.FromString(quoteVol)
	if err != nil {
		return model.Candle{}, err
	}
	return model.Candle{
		Symbol:      symbol,
		Provider:    "binance",
		Interval:    interval,
		OpenTime:    time.UnixMilli(startMs).UTC(),
		CloseTime:   time.UnixMilli(closeMs).UTC(),
		Open:        o,
		High:        h,
		Low:         l,
		Close:       c,
		Volume:      v,
		QuoteVolume: qv,
		TradeCount:  tradeCount,
		Closed:      closed,
	}, nil
}

// restKlineColumns is the index layout of a /api/v3/klines REST response
// row: [openTime, open, high, low, close, volume, closeTime, quoteVolume,
// numTrades, takerBuyBaseVol, takerBuyQuoteVol, ignore].
func parseRESTKline(row []any, symbol, interval string) (model.Candle, error) {
	if len(row) < 9 {
		return model.Candle{}, fmt.Errorf("binance: malformed kline row")
	}
	openTime, err := asInt64(row[0])
	if err != nil {
		return model.Candle{}, err
	}
	closeTime, err := asInt64(row[6])
	if err != nil {
		return model.Candle{}, err
	}
	numTrades, _ := asInt64(row[8])

	return buildCandle(symbol, interval, openTime, closeTime,
		asString(row[1]), asString(row[2]), asString(row[3]), asString(row[4]),
		asString(row[5]), asString(row[7]), numTrades, true)
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("binance: unexpected numeric type %T", v)
	}
}

// ValidInterval reports whether interval is one of Binance's supported
// kline interval strings. Case matters: "1m" is one minute, "1M" is one
// month.
func ValidInterval(interval string) bool {
	switch interval {
	case "1s", "1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M":
		return true
	default:
		return false
	}
}
