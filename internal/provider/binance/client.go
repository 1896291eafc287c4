// Package binance implements the Binance-shaped market-data provider (C1):
// a reconnecting combined-stream WebSocket client plus REST backfill,
// grounded on the teacher's pkg/smartconnect.SmartWebSocketV3 connection
// lifecycle, generalized from Angel One's binary tick protocol to Binance's
// discriminated JSON stream format.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cryptoengine/internal/model"
	"cryptoengine/internal/provider"
)

const (
	wsBaseURL   = "wss://stream.binance.com:9443/stream"
	restBaseURL = "https://api.binance.com"

	connectDeadline = 10 * time.Second
	restDeadline    = 15 * time.Second
	maxKlineLimit   = 1000

	backfillOnReconnectDepth = 500
	backfillRetryAttempts    = 2
	backfillRetrySleep       = 2 * time.Second
)

// Client is a Binance combined-stream provider. One Client owns exactly one
// WebSocket connection; subscriptions are tracked so a reconnect can replay
// them.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	log        *slog.Logger

	reconnectCapSec int

	mu              sync.Mutex
	conn            *websocket.Conn
	connected       bool
	manualDisconnect bool
	nextID          int64

	// stream name -> struct{} for plain subscriptions (trade, aggTrade,
	// depth, bookTicker, ticker); klineSubs tracks (symbol,interval) pairs
	// separately because reconnect needs to backfill them via REST.
	streamSubs map[string]struct{}
	klineSubs  map[klineKey]struct{}

	// partial-depth correlation (§4.1 DECISION): refuse unless exactly one
	// active order-book subscription exists.
	depthSymbols map[string]struct{}

	handler provider.Handler

	onOrderbookCorrelationDropped func()
	onReconnect                   func()

	cancel context.CancelFunc
}

type klineKey struct {
	symbol   string
	interval string
}

// Option configures optional hooks a Client's caller (the C0 composition
// root) can wire to metrics.
type Option func(*Client)

// WithOrderbookCorrelationDroppedHook registers a callback invoked each time
// an ambiguous partial-depth message is dropped.
func WithOrderbookCorrelationDroppedHook(fn func()) Option {
	return func(c *Client) { c.onOrderbookCorrelationDropped = fn }
}

// WithReconnectHook registers a callback invoked on every reconnect attempt.
func WithReconnectHook(fn func()) Option {
	return func(c *Client) { c.onReconnect = fn }
}

// New constructs a Binance provider client. reconnectCapSec bounds the
// exponential backoff (§5: min(reconnectCapSec, 5*2^(n-1))).
func New(log *slog.Logger, reconnectCapSec int, opts ...Option) *Client {
	if reconnectCapSec <= 0 {
		reconnectCapSec = 60
	}
	c := &Client{
		httpClient:      &http.Client{Timeout: restDeadline},
		dialer:          websocket.DefaultDialer,
		log:             log,
		reconnectCapSec: reconnectCapSec,
		streamSubs:      make(map[string]struct{}),
		klineSubs:       make(map[klineKey]struct{}),
		depthSymbols:    make(map[string]struct{}),
		manualDisconnect: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHandler registers the single normalized-event sink.
func (c *Client) SetHandler(h provider.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect establishes the streaming connection with a 10-second deadline.
// Idempotent if already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.manualDisconnect = false
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, connectDeadline)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, wsBaseURL, nil)
	if err != nil {
		return fmt.Errorf("binance: connect: %w", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.cancel = runCancel
	c.mu.Unlock()

	go c.readLoop(runCtx)
	return nil
}

// Disconnect flags a manual close, tears down the connection, and clears
// subscription tracking. No automatic reconnect follows.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.manualDisconnect = true
	c.connected = false
	conn := c.conn
	cancel := c.cancel
	c.streamSubs = make(map[string]struct{})
	c.klineSubs = make(map[klineKey]struct{})
	c.depthSymbols = make(map[string]struct{})
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}

// readLoop reads frames until the connection closes, then triggers
// reconnect unless the close was requested by Disconnect.
func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasManual := c.manualDisconnect
			c.connected = false
			c.mu.Unlock()

			if c.log != nil {
				c.log.Warn("binance: read error", "err", err)
			}
			if !wasManual {
				go c.reconnectLoop()
			}
			return
		}

		c.handleMessage(msg)
	}
}

// reconnectLoop implements §5's backoff: min(cap, 5*2^(n-1)) seconds,
// doubling each attempt. On success, resets the counter, replays every
// active subscription, and backfills klines.
func (c *Client) reconnectLoop() {
	attempt := 0
	for {
		c.mu.Lock()
		manual := c.manualDisconnect
		c.mu.Unlock()
		if manual {
			return
		}

		attempt++
		delay := reconnectBackoff(attempt, c.reconnectCapSec)
		time.Sleep(delay)

		if c.onReconnect != nil {
			c.onReconnect()
		}

		if err := c.Connect(context.Background()); err != nil {
			if c.log != nil {
				c.log.Warn("binance: reconnect failed", "attempt", attempt, "err", err)
			}
			continue
		}

		c.resubscribeAll()
		c.backfillAfterReconnect()
		return
	}
}

// reconnectBackoff computes min(capSec, 5*2^(n-1)) seconds for attempt n
// (1-indexed). This replaces the teacher's `retryMultiplier^(attempts-1)`
// bug, where ^ is Go's bitwise XOR rather than exponentiation.
func reconnectBackoff(attempt, capSec int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	secs := 5 * (1 << uint(attempt-1))
	if secs > capSec {
		secs = capSec
	}
	return time.Duration(secs) * time.Second
}

func (c *Client) resubscribeAll() {
	c.mu.Lock()
	streams := make([]string, 0, len(c.streamSubs))
	for s := range c.streamSubs {
		streams = append(streams, s)
	}
	klines := make([]klineKey, 0, len(c.klineSubs))
	for k := range c.klineSubs {
		klines = append(klines, k)
	}
	for _, k := range klines {
		streams = append(streams, klineStreamName(k.symbol, k.interval))
	}
	c.mu.Unlock()

	// One SUBSCRIBE frame per stream (§4.1: "each produces a request
	// envelope"), rather than one batched frame for all of them.
	for _, s := range streams {
		if err := c.sendSubscribeRequest([]string{s}); err != nil && c.log != nil {
			c.log.Warn("binance: resubscribe failed", "stream", s, "err", err)
		}
	}
}

// backfillAfterReconnect fetches the last backfillOnReconnectDepth closed
// candles for every previously subscribed (symbol, interval) pair, up to
// backfillRetryAttempts attempts spaced backfillRetrySleep apart, and
// re-emits each as a closed-candle event.
func (c *Client) backfillAfterReconnect() {
	c.mu.Lock()
	klines := make([]klineKey, 0, len(c.klineSubs))
	for k := range c.klineSubs {
		klines = append(klines, k)
	}
	handler := c.handler
	c.mu.Unlock()

	if handler == nil {
		return
	}

	for _, k := range klines {
		var candles []model.Candle
		var err error
		for attempt := 0; attempt < backfillRetryAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), restDeadline)
			candles, err = c.HistoricalKlines(ctx, k.symbol, k.interval, backfillOnReconnectDepth)
			cancel()
			if err == nil && len(candles) > 0 {
				break
			}
			time.Sleep(backfillRetrySleep)
		}
		if err != nil {
			if c.log != nil {
				c.log.Warn("binance: reconnect backfill failed", "symbol", k.symbol, "interval", k.interval, "err", err)
			}
			continue
		}
		for i := range candles {
			cc := candles[i]
			handler(provider.Event{Kind: provider.EventCandle, Candle: &cc})
		}
	}
}

func (c *Client) nextRequestID() int64 {
	return atomic.AddInt64(&c.nextID, 1)
}

func (c *Client) sendSubscribeRequest(streams []string) error {
	return c.sendMethod("SUBSCRIBE", streams)
}

func (c *Client) sendUnsubscribeRequest(streams []string) error {
	return c.sendMethod("UNSUBSCRIBE", streams)
}

func (c *Client) sendMethod(method string, streams []string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("binance: not connected")
	}

	req := map[string]any{
		"method": method,
		"params": streams,
		"id":     c.nextRequestID(),
	}
	return conn.WriteJSON(req)
}

func streamLower(symbol string) string {
	return strings.ToLower(symbol)
}

func klineStreamName(symbol, interval string) string {
	return fmt.Sprintf("%s@kline_%s", streamLower(symbol), interval)
}

func (c *Client) subscribe(stream string, track func()) error {
	if err := c.sendSubscribeRequest([]string{stream}); err != nil {
		// §4.1: subscribe/unsubscribe never propagate past the public
		// surface on send failure — log and drop, connection state is
		// untouched.
		if c.log != nil {
			c.log.Warn("binance: subscribe failed", "stream", stream, "err", err)
		}
		return nil
	}
	c.mu.Lock()
	track()
	c.mu.Unlock()
	return nil
}

func (c *Client) unsubscribe(stream string, untrack func()) error {
	if err := c.sendUnsubscribeRequest([]string{stream}); err != nil {
		if c.log != nil {
			c.log.Warn("binance: unsubscribe failed", "stream", stream, "err", err)
		}
		return nil
	}
	c.mu.Lock()
	untrack()
	c.mu.Unlock()
	return nil
}

func (c *Client) SubscribeTicker(symbol string) error {
	stream := streamLower(symbol) + "@ticker"
	return c.subscribe(stream, func() { c.streamSubs[stream] = struct{}{} })
}

func (c *Client) UnsubscribeTicker(symbol string) error {
	stream := streamLower(symbol) + "@ticker"
	return c.unsubscribe(stream, func() { delete(c.streamSubs, stream) })
}

func (c *Client) SubscribeKline(symbol, interval string) error {
	stream := klineStreamName(symbol, interval)
	if err := c.sendSubscribeRequest([]string{stream}); err != nil {
		if c.log != nil {
			c.log.Warn("binance: subscribe kline failed", "stream", stream, "err", err)
		}
		return nil
	}
	c.mu.Lock()
	c.klineSubs[klineKey{symbol: symbol, interval: interval}] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Client) UnsubscribeKline(symbol, interval string) error {
	stream := klineStreamName(symbol, interval)
	if err := c.sendUnsubscribeRequest([]string{stream}); err != nil {
		if c.log != nil {
			c.log.Warn("binance: unsubscribe kline failed", "stream", stream, "err", err)
		}
		return nil
	}
	c.mu.Lock()
	delete(c.klineSubs, klineKey{symbol: symbol, interval: interval})
	c.mu.Unlock()
	return nil
}

func (c *Client) SubscribeTrade(symbol string) error {
	stream := streamLower(symbol) + "@trade"
	return c.subscribe(stream, func() { c.streamSubs[stream] = struct{}{} })
}

func (c *Client) UnsubscribeTrade(symbol string) error {
	stream := streamLower(symbol) + "@trade"
	return c.unsubscribe(stream, func() { delete(c.streamSubs, stream) })
}

func (c *Client) SubscribeAggTrade(symbol string) error {
	stream := streamLower(symbol) + "@aggTrade"
	return c.subscribe(stream, func() { c.streamSubs[stream] = struct{}{} })
}

func (c *Client) UnsubscribeAggTrade(symbol string) error {
	stream := streamLower(symbol) + "@aggTrade"
	return c.unsubscribe(stream, func() { delete(c.streamSubs, stream) })
}

func (c *Client) SubscribeDepth(symbol string) error {
	stream := streamLower(symbol) + "@depth"
	return c.subscribe(stream, func() {
		c.streamSubs[stream] = struct{}{}
		c.depthSymbols[strings.ToUpper(symbol)] = struct{}{}
	})
}

func (c *Client) UnsubscribeDepth(symbol string) error {
	stream := streamLower(symbol) + "@depth"
	return c.unsubscribe(stream, func() {
		delete(c.streamSubs, stream)
		delete(c.depthSymbols, strings.ToUpper(symbol))
	})
}

func (c *Client) SubscribeBookTicker(symbol string) error {
	stream := streamLower(symbol) + "@bookTicker"
	return c.subscribe(stream, func() { c.streamSubs[stream] = struct{}{} })
}

func (c *Client) UnsubscribeBookTicker(symbol string) error {
	stream := streamLower(symbol) + "@bookTicker"
	return c.unsubscribe(stream, func() { delete(c.streamSubs, stream) })
}

// HistoricalKlines fetches at most limit (capped at 1000) closed candles via
// REST, retrying twice on empty/error with a 2-second sleep (§4.1).
func (c *Client) HistoricalKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	return c.fetchKlinesWithRetry(ctx, q, symbol, interval)
}

// HistoricalKlinesRange fetches closed candles in [start, end] (epoch
// milliseconds) via REST.
func (c *Client) HistoricalKlinesRange(ctx context.Context, symbol, interval string, start, end int64) ([]model.Candle, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(maxKlineLimit))
	q.Set("startTime", strconv.FormatInt(start, 10))
	q.Set("endTime", strconv.FormatInt(end, 10))
	return c.fetchKlinesWithRetry(ctx, q, symbol, interval)
}

func (c *Client) fetchKlinesWithRetry(ctx context.Context, q url.Values, symbol, interval string) ([]model.Candle, error) {
	var lastErr error
	// One initial attempt plus up to backfillRetryAttempts retries.
	for attempt := 0; attempt <= backfillRetryAttempts; attempt++ {
		candles, err := c.fetchKlinesOnce(ctx, q, symbol, interval)
		if err == nil && len(candles) > 0 {
			return candles, nil
		}
		lastErr = err
		if attempt < backfillRetryAttempts {
			time.Sleep(backfillRetrySleep)
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (c *Client) fetchKlinesOnce(ctx context.Context, q url.Values, symbol, interval string) ([]model.Candle, error) {
	reqCtx, cancel := context.WithTimeout(ctx, restDeadline)
	defer cancel()

	endpoint := restBaseURL + "/api/v3/klines?" + q.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("binance: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, fmt.Errorf("binance: historical klines timeout: %w", err)
		}
		return nil, fmt.Errorf("binance: historical klines: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: historical klines http %d", resp.StatusCode)
	}

	var raw [][]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("binance: parse klines: %w", err)
	}

	out := make([]model.Candle, 0, len(raw))
	for _, row := range raw {
		cdl, err := parseRESTKline(row, symbol, interval)
		if err != nil {
			continue
		}
		out = append(out, cdl)
	}
	return out, nil
}
