// Command replay drives the historical-replay push envelope (§6) from the
// candle journal mdengine writes to SQLite. It is a self-contained demo
// server: no Redis, no live exchange connection, no mdengine/indengine
// process required. It re-serves the same WebSocket/HTTP surface as
// api_gateway (internal/gateway) so a client built against the live
// gateway works unmodified against a recorded session, and recomputes one
// indicator's historical series up front and attaches each candle's values
// to the replayUpdate envelope it pushes on the trading endpoint.
//
// Usage:
//
//	go run ./cmd/replay --db=data/journal.db --provider=binance --symbol=BTCUSDT --interval=1m --speed=20
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptoengine/internal/candlestore"
	"cryptoengine/internal/gateway"
	"cryptoengine/internal/indicator"
	"cryptoengine/internal/logger"
	"cryptoengine/internal/model"
	sqlitestore "cryptoengine/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	dbPath := flag.String("db", "data/journal.db", "path to the SQLite candle journal written by mdengine")
	provider := flag.String("provider", "binance", "provider to replay")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to replay")
	interval := flag.String("interval", "1m", "candle interval to replay")
	indicatorID := flag.String("indicator", "sma", "indicator to precompute and push alongside each candle")
	speed := flag.Float64("speed", 20, "playback speed multiplier (1=realtime, 0=as fast as possible)")
	addr := flag.String("addr", ":8090", "HTTP/WS listen address")
	fromTS := flag.Int64("from", 0, "unix seconds to start replay from (0=all recorded candles)")
	flag.Parse()

	slogger := logger.Init("replay", slog.LevelInfo)

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[replay] sqlite open failed: %v", err)
	}
	defer reader.Close()

	candles, err := reader.ReadCandles(*provider, *symbol, *interval, *fromTS)
	if err != nil {
		log.Fatalf("[replay] read candles failed: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("[replay] no recorded candles for %s:%s:%s in %s", *provider, *symbol, *interval, *dbPath)
	}
	slogger.Info("loaded recorded candles", "count", len(candles), "provider", *provider, "symbol", *symbol, "interval", *interval)

	registry := indicator.NewRegistry()
	ind, err := registry.New(*indicatorID)
	if err != nil {
		log.Fatalf("[replay] unknown indicator %q: %v", *indicatorID, err)
	}
	params, err := indicator.ValidateAndFill(ind.ParamSchema(), nil)
	if err != nil {
		log.Fatalf("[replay] default params for %q invalid: %v", *indicatorID, err)
	}
	points := indicator.CalculateHistorical(ind, candles, params)

	store := candlestore.New(len(candles), slogger, nil)
	hub := gateway.NewHub([]string{*provider}, []string{*interval})
	server := gateway.NewServer(hub, store, registry)

	httpSrv := &http.Server{Addr: *addr, Handler: server.Routes()}
	go func() {
		slogger.Info("replay server listening", "addr", *addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[replay] server error: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	go driveReplay(ctx, hub, store, candles, points, *speed)

	<-ctx.Done()
	slogger.Info("shutting down")
	_ = httpSrv.Shutdown(context.Background())
}

// driveReplay feeds one candle at a time into the store, pacing itself by
// the recorded inter-candle gap divided by speed (speed<=0 disables pacing
// and replays as fast as the WS fan-out allows), and pushes a
// ReplayUpdateEnvelope after each step carrying that candle's precomputed
// indicator values.
func driveReplay(ctx context.Context, hub *gateway.Hub, store *candlestore.Store, candles []model.Candle, points []indicator.Point, speed float64) {
	total := len(candles)
	for i, c := range candles {
		select {
		case <-ctx.Done():
			return
		default:
		}

		store.Add(c)

		var values map[string]float64
		if i < len(points) {
			values = points[i].Values
		}

		hub.OnReplayUpdate(gateway.ReplayUpdateEnvelope{
			Type:         "replayUpdate",
			State:        replayState(i, total),
			CurrentIndex: i,
			TotalCandles: total,
			Progress:     float64(i+1) / float64(total),
			Speed:        speed,
			Candle:       &candles[i],
			Indicators:   values,
		})

		if speed > 0 && i+1 < total {
			gap := candles[i+1].OpenTime.Sub(c.OpenTime)
			if gap > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(float64(gap) / speed)):
				}
			}
		}
	}
}

func replayState(i, total int) string {
	if i+1 >= total {
		return "done"
	}
	return "playing"
}
