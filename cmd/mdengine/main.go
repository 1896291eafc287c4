// Command mdengine runs the market-data pipeline (C1-C4): it connects one
// exchange provider, normalizes every event through the universal data
// service, and fans closed candles, trades, order-book snapshots, and
// book-ticker updates out to the footprint aggregator, Redis (hot path) and
// SQLite (durable journal).
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoengine/config"
	"cryptoengine/internal/candlestore"
	"cryptoengine/internal/datasvc"
	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/footprint"
	"cryptoengine/internal/logger"
	"cryptoengine/internal/metrics"
	"cryptoengine/internal/model"
	"cryptoengine/internal/provider"
	"cryptoengine/internal/provider/binance"
	redisstore "cryptoengine/internal/store/redis"
	sqlitestore "cryptoengine/internal/store/sqlite"
	"sync"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[mdengine] starting...")

	cfg := config.Load()
	slogger := logger.Init("mdengine", slog.LevelInfo)

	symbols := cfg.ParseSymbols()
	intervals := cfg.ParseIntervals()
	if len(symbols) == 0 {
		log.Fatal("[mdengine] no symbols configured")
	}
	if len(intervals) == 0 {
		log.Fatal("[mdengine] no intervals configured")
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledIntervals(intervals)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	redisWriter, err := redisstore.New(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Fatalf("[mdengine] redis connect failed: %v", err)
	}
	sqliteWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[mdengine] sqlite open failed: %v", err)
	}

	store := candlestore.New(cfg.HistoryBound, slogger, func(key string, missingFrom, missingTo time.Time) {
		slogger.Warn("candle gap detected", "key", key, "from", missingFrom, "to", missingTo)
	})
	flow := footprint.New(footprint.DefaultBarBound, footprint.DefaultMinTick)
	data := datasvc.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisCandleCh := make(chan model.Candle, 1024)
	sqliteCandleCh := make(chan model.Candle, 1024)
	go redisWriter.Run(ctx, redisCandleCh)
	go sqliteWriter.Run(ctx, sqliteCandleCh)

	var lastPriceMu sync.RWMutex
	lastPrice := make(map[string]fixedpoint.Value)
	setLastPrice := func(providerName, symbol string, price fixedpoint.Value) {
		lastPriceMu.Lock()
		lastPrice[providerName+":"+symbol] = price
		lastPriceMu.Unlock()
	}
	midPrice := func(providerName, symbol string) fixedpoint.Value {
		lastPriceMu.RLock()
		defer lastPriceMu.RUnlock()
		return lastPrice[providerName+":"+symbol]
	}

	data.SetHandler(func(ev provider.Event) {
		switch ev.Kind {
		case provider.EventCandle:
			c := *ev.Candle
			if !c.Closed {
				setLastPrice(c.Provider, c.Symbol, c.Close)
				return
			}
			setLastPrice(c.Provider, c.Symbol, c.Close)
			key := candlestore.Key(c.Provider, c.Symbol, c.Interval)
			result := store.Add(c)
			if result == candlestore.AddLate {
				prom.StaleCandlesRejected.Inc()
			}
			prom.CandlesByIntervalTotal.WithLabelValues(c.Interval).Inc()
			prom.CandleLag.Set(time.Since(c.CloseTime).Seconds())
			health.SetCandleStoreOK(true)
			health.SetLastTickTime(time.Now())
			select {
			case redisCandleCh <- c:
			default:
				slogger.Warn("redis candle channel saturated, dropping", "key", key)
			}
			select {
			case sqliteCandleCh <- c:
			default:
				slogger.Warn("sqlite candle channel saturated, dropping", "key", key)
			}

		case provider.EventTrade:
			t := *ev.Trade
			setLastPrice(t.Provider, t.Symbol, t.Price)
			prom.TicksTotal.Inc()
			health.SetLastTickTime(time.Now())
			mid := midPrice(t.Provider, t.Symbol)
			for _, interval := range intervals {
				flow.OnTrade(t, interval, mid)
			}
			redisWriter.PublishTrade(ctx, t)

		case provider.EventOrderBook:
			b := *ev.OrderBook
			redisWriter.PublishOrderBook(ctx, b)

		case provider.EventBookTicker:
			b := *ev.OrderBook
			redisWriter.PublishBookTicker(ctx, b)
		}
	})

	client := binance.New(slogger, cfg.ReconnectCapSec,
		binance.WithReconnectHook(func() {
			prom.WSReconnects.Inc()
			health.SetWSConnected(true)
		}),
		binance.WithOrderbookCorrelationDroppedHook(func() {
			prom.OrderbookCorrelationDropped.Inc()
		}),
	)
	data.RegisterProvider(cfg.Provider, client)

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("[mdengine] connect failed: %v", err)
	}
	health.SetWSConnected(true)

	for _, symbol := range symbols {
		if err := client.SubscribeTrade(symbol); err != nil {
			slogger.Error("subscribe trade failed", "symbol", symbol, "err", err)
		}
		if err := client.SubscribeBookTicker(symbol); err != nil {
			slogger.Error("subscribe book ticker failed", "symbol", symbol, "err", err)
		}
		if err := client.SubscribeDepth(symbol); err != nil {
			slogger.Error("subscribe depth failed", "symbol", symbol, "err", err)
		}
		for _, interval := range intervals {
			if err := client.SubscribeKline(symbol, interval); err != nil {
				slogger.Error("subscribe kline failed", "symbol", symbol, "interval", interval, "err", err)
				continue
			}
			backfillInterval(ctx, client, store, symbol, interval, cfg.BackfillDepth, slogger)
		}
	}

	health.StartLivenessChecker(ctx, redisWriter.Client(), sqliteWriter.DB(), 15*time.Second)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[mdengine] shutting down...")

	cancel()
	_ = client.Disconnect()
	_ = redisWriter.Close()
	_ = sqliteWriter.Close()
	metricsSrv.Stop(context.Background())
	log.Println("[mdengine] stopped")
}

// backfillInterval seeds the candle store with REST history so indicator
// consumers have enough bars the moment the live stream picks up.
func backfillInterval(ctx context.Context, client *binance.Client, store *candlestore.Store, symbol, interval string, depth int, slogger *slog.Logger) {
	candles, err := client.HistoricalKlines(ctx, symbol, interval, depth)
	if err != nil {
		slogger.Error("historical backfill failed", "symbol", symbol, "interval", interval, "err", err)
		return
	}
	for _, c := range candles {
		store.Add(c)
	}
	slogger.Info("backfilled candles", "symbol", symbol, "interval", interval, "count", len(candles))
}
