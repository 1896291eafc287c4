// Command indengine runs the indicator computation tier (C5-C6): it
// consumes the candle, trade, and order-book streams mdengine publishes to
// Redis, feeds every live indicator instance, and republishes results. It
// also exposes a small HTTP API for creating and destroying instances,
// since instances are created on demand rather than auto-discovered from
// a fixed per-timeframe config.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoengine/config"
	"cryptoengine/internal/candlestore"
	"cryptoengine/internal/datasvc"
	"cryptoengine/internal/indicator"
	"cryptoengine/internal/logger"
	"cryptoengine/internal/metrics"
	"cryptoengine/internal/model"
	"cryptoengine/internal/provider/binance"
	redisstore "cryptoengine/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[indengine] starting...")

	cfg := config.Load()
	slogger := logger.Init("indengine", slog.LevelInfo)

	symbols := cfg.ParseSymbols()
	intervals := cfg.ParseIntervals()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledIntervals(intervals)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	store := candlestore.New(cfg.HistoryBound, slogger, nil)
	data := datasvc.New()
	// Registered for REST-only backfill when a newly created instance needs
	// more warm-up history than C3 currently holds; this process never
	// connects or subscribes the client itself.
	data.RegisterProvider(cfg.Provider, binance.New(slogger, cfg.ReconnectCapSec))

	registry := indicator.NewRegistry()
	manager := indicator.NewManager(registry, store, data, slogger)

	redisWriter, err := redisstore.New(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Fatalf("[indengine] redis writer connect failed: %v", err)
	}
	reader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword,
		ConsumerGroup: "indengine", ConsumerName: hostConsumerName(),
	})
	if err != nil {
		log.Fatalf("[indengine] redis reader connect failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streams := candleStreams(cfg.Provider, symbols, intervals)
	if len(streams) > 0 {
		if err := reader.EnsureConsumerGroup(ctx, streams); err != nil {
			log.Fatalf("[indengine] consumer group setup failed: %v", err)
		}
	}

	candleCh := make(chan model.Candle, 1024)
	go reader.ConsumeCandles(ctx, streams, candleCh)
	go reader.StartPELReclaimer(ctx, streams, "indengine", hostConsumerName(), 30*time.Second, 60000, candleCh,
		func(count int) { prom.PELMessagesReclaimed.Add(float64(count)) })

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-candleCh:
				if !ok {
					return
				}
				store.Add(c)
				if !c.Closed {
					continue
				}
				started := time.Now()
				results := manager.UpdateAllWithCandle(c.Provider, c.Symbol, c.Interval, c)
				prom.IndicatorComputeDur.Observe(time.Since(started).Seconds())
				prom.IndicatorsTotal.Add(float64(len(results)))
				if err := redisWriter.WriteIndicatorBatch(ctx, results); err != nil {
					slogger.Error("write indicator batch failed", "err", err)
				}
			}
		}
	}()

	for _, symbol := range symbols {
		go subscribeTrades(ctx, reader, redisWriter, manager, cfg.Provider, symbol, intervals, prom)
		go subscribeOrderBooks(ctx, reader, redisWriter, manager, cfg.Provider, symbol, intervals)
	}

	health.SetCandleStoreOK(true)
	health.SetIndicatorOK(true)
	health.StartLivenessChecker(ctx, redisWriter.Client(), nil, 15*time.Second)

	apiSrv := newInstanceAPI(manager)
	httpSrv := &http.Server{Addr: ":8089", Handler: apiSrv}
	go func() {
		log.Printf("[indengine] instance API listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[indengine] instance API error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[indengine] shutting down...")

	cancel()
	_ = reader.Close()
	_ = redisWriter.Close()
	_ = httpSrv.Shutdown(context.Background())
	metricsSrv.Stop(context.Background())
	log.Println("[indengine] stopped")
}

func candleStreams(providerName string, symbols, intervals []string) []string {
	var streams []string
	for _, sym := range symbols {
		for _, iv := range intervals {
			streams = append(streams, "candle:"+providerName+":"+sym+":"+iv)
		}
	}
	return streams
}

func hostConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "indengine"
	}
	return host + "-" + time.Now().Format("150405")
}

// subscribeTrades drains the trade Pub/Sub channel for one symbol and feeds
// every (interval) indicator instance that declares it needs trade data.
func subscribeTrades(ctx context.Context, reader *redisstore.Reader, writer *redisstore.Writer, manager *indicator.Manager, providerName, symbol string, intervals []string, prom *metrics.Metrics) {
	ch := "pub:trade:" + providerName + ":" + symbol
	pubsub := reader.SubscribeChannel(ctx, ch)
	if pubsub == nil {
		return
	}
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var t model.Trade
			if err := json.Unmarshal([]byte(msg.Payload), &t); err != nil {
				continue
			}
			prom.TicksTotal.Inc()
			for _, interval := range intervals {
				results := manager.UpdateAllWithTrade(providerName, symbol, interval, t, t.IsAggregate)
				if len(results) > 0 {
					_ = writer.WriteIndicatorBatch(ctx, results)
				}
			}
		}
	}
}

// subscribeOrderBooks drains the order-book Pub/Sub channel for one symbol
// and feeds every (interval) indicator instance that declares it needs
// order-book data.
func subscribeOrderBooks(ctx context.Context, reader *redisstore.Reader, writer *redisstore.Writer, manager *indicator.Manager, providerName, symbol string, intervals []string) {
	ch := "pub:book:" + providerName + ":" + symbol
	pubsub := reader.SubscribeChannel(ctx, ch)
	if pubsub == nil {
		return
	}
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var b model.OrderBookSnapshot
			if err := json.Unmarshal([]byte(msg.Payload), &b); err != nil {
				continue
			}
			for _, interval := range intervals {
				results := manager.UpdateAllWithOrderBook(providerName, symbol, interval, b)
				if len(results) > 0 {
					_ = writer.WriteIndicatorBatch(ctx, results)
				}
			}
		}
	}
}
