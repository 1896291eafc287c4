// Command api_gateway runs the client-facing broadcast tier (C7) and the
// bot/account/risk stub (C8): it subscribes to every Redis Pub/Sub channel
// mdengine and indengine publish to, fans events out to WebSocket sessions
// through internal/gateway.Hub, answers historical queries directly
// against its own candle store, kept warm from the candle Pub/Sub feed, and feeds the same events into a paper
// trading strategy engine whose orders are risk-checked and filled against
// a simulated account.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cryptoengine/config"
	"cryptoengine/internal/candlestore"
	"cryptoengine/internal/execution"
	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/gateway"
	"cryptoengine/internal/indicator"
	"cryptoengine/internal/logger"
	"cryptoengine/internal/metrics"
	"cryptoengine/internal/model"
	"cryptoengine/internal/portfolio"
	"cryptoengine/internal/provider"
	"cryptoengine/internal/strategy"
	redisstore "cryptoengine/internal/store/redis"
	sqlitestore "cryptoengine/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[api_gateway] starting...")

	cfg := config.Load()
	slogger := logger.Init("api_gateway", slog.LevelInfo)

	symbols := cfg.ParseSymbols()
	intervals := cfg.ParseIntervals()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledIntervals(intervals)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// The history endpoint replays indicators from scratch against this
	// store, so it needs its own warm copy fed by the candle PubSub below
	// rather than sharing mdengine's in-process store across a network hop.
	store := candlestore.New(cfg.HistoryBound, slogger, nil)
	registry := indicator.NewRegistry()

	hub := gateway.NewHub([]string{cfg.Provider}, intervals)
	server := gateway.NewServer(hub, store, registry)

	reader, err := redisstore.NewReader(redisstore.ReaderConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Fatalf("[api_gateway] redis connect failed: %v", err)
	}

	journal, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[api_gateway] sqlite open failed: %v", err)
	}

	// C8: a paper account tracking simulated fills against every symbol this
	// gateway broadcasts for, gated by a risk manager before any fill lands.
	pf := portfolio.New()
	risk := portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), pf)
	pnl := portfolio.NewPnLTracker()
	paper := execution.NewPaperExecutor(fixedpoint.FromFloat64(5)) // 5bps slippage
	executor := execution.NewExecutor(paper, risk, pf, journal, pnl, 256)

	bot := strategy.NewEngine(256)
	for _, symbol := range symbols {
		bot.Register(strategy.NewSMACrossover(cfg.Provider, symbol, 9, 21, fixedpoint.FromFloat64(0.01), true, 14))
	}

	botEventCh := make(chan provider.Event, 1024)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bot.Run(ctx, botEventCh)
	go executor.Run(ctx, bot.Orders())
	go logFills(ctx, executor, slogger)

	go fanIn(ctx, reader, hub, store, prom, paper, botEventCh)
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, reader.Client(), journal.DB(), 15*time.Second)

	mux := http.NewServeMux()
	mux.Handle("/", server.Routes())
	for _, symbol := range symbols {
		slogger.Info("gateway tracking symbol", "symbol", symbol)
	}

	httpSrv := &http.Server{Addr: cfg.GatewayAddr, Handler: corsMiddleware(mux)}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[api_gateway] serving at %s", cfg.GatewayAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[api_gateway] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[api_gateway] shutting down...")
	cancel()
	_ = reader.Close()
	_ = journal.Close()
	_ = httpSrv.Shutdown(context.Background())
	metricsSrv.Stop(context.Background())
}

// fanIn subscribes to every published event channel and routes each
// message to the Hub (for live broadcast), the local store (for
// /api/history replay), the paper account's mark price, and the bot engine
// (C8).
func fanIn(ctx context.Context, reader *redisstore.Reader, hub *gateway.Hub, store *candlestore.Store, prom *metrics.Metrics, paper *execution.PaperExecutor, botEventCh chan<- provider.Event) {
	pubsub := reader.PSubscribeChannel(ctx, "pub:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			routeMessage(msg.Channel, []byte(msg.Payload), hub, store, prom, paper, botEventCh)
		}
	}
}

func routeMessage(channel string, payload []byte, hub *gateway.Hub, store *candlestore.Store, prom *metrics.Metrics, paper *execution.PaperExecutor, botEventCh chan<- provider.Event) {
	switch {
	case strings.HasPrefix(channel, "pub:candle:"):
		var c model.Candle
		if err := json.Unmarshal(payload, &c); err != nil {
			return
		}
		hub.OnCandle(c)
		if c.Closed {
			store.Add(c)
		}
		paper.UpdatePrice(c.Provider, c.Symbol, c.Close)
		feedBot(botEventCh, provider.Event{Kind: provider.EventCandle, Candle: &c})

	case strings.HasPrefix(channel, "pub:trade:"):
		var t model.Trade
		if err := json.Unmarshal(payload, &t); err != nil {
			return
		}
		prom.TicksTotal.Inc()
		hub.OnTrade(t)
		paper.UpdatePrice(t.Provider, t.Symbol, t.Price)
		feedBot(botEventCh, provider.Event{Kind: provider.EventTrade, Trade: &t})

	case strings.HasPrefix(channel, "pub:book:"):
		var b model.OrderBookSnapshot
		if err := json.Unmarshal(payload, &b); err != nil {
			return
		}
		hub.OnOrderBook(b)
		feedBot(botEventCh, provider.Event{Kind: provider.EventOrderBook, OrderBook: &b})

	case strings.HasPrefix(channel, "pub:bookticker:"):
		var b model.OrderBookSnapshot
		if err := json.Unmarshal(payload, &b); err != nil {
			return
		}
		hub.OnBookTicker(b)
		feedBot(botEventCh, provider.Event{Kind: provider.EventBookTicker, OrderBook: &b})

	case strings.HasPrefix(channel, "pub:ind:"):
		var r model.IndicatorResult
		if err := json.Unmarshal(payload, &r); err != nil {
			return
		}
		hub.OnIndicatorResult(r, "")
	}
}

// feedBot forwards a normalized event to the bot engine, dropping it rather
// than blocking if the engine's inbound buffer is saturated.
func feedBot(botEventCh chan<- provider.Event, ev provider.Event) {
	select {
	case botEventCh <- ev:
	default:
	}
}

// logFills drains executor results so every simulated fill or rejection
// shows up in the process log.
func logFills(ctx context.Context, executor *execution.Executor, slogger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-executor.Results():
			if !ok {
				return
			}
			slogger.Info("order result", "status", result.Status, "side", result.Order.Side,
				"symbol", result.Order.Symbol, "qty", result.Order.FilledQty, "price", result.Order.AvgPrice,
				"message", result.Message)
		}
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
