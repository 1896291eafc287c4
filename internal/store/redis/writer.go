package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cryptoengine/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 30 * time.Minute

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string
	Password string
	DB       int
}

// Writer publishes candles, trades, order-book snapshots and indicator
// results to Redis: XADD to a bounded stream (cross-process durability within the
// process group's lifetime) plus PUBLISH for live subscribers. Satisfies
// model.CandleWriter and model.IndicatorWriter.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads candles from candleCh and writes them to Redis. Blocks until
// ctx is cancelled or candleCh is closed. Satisfies model.CandleWriter.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			w.writeCandle(ctx, c)
		}
	}
}

// PublishTrade fans a trade out via PubSub only (ephemeral, per §3 — trades
// are never retained, so no XADD).
func (w *Writer) PublishTrade(ctx context.Context, t model.Trade) {
	ch := "pub:trade:" + t.Provider + ":" + t.Symbol
	w.client.Publish(ctx, ch, string(mustJSON(t)))
}

// PublishOrderBook fans an order-book snapshot out via PubSub only.
func (w *Writer) PublishOrderBook(ctx context.Context, b model.OrderBookSnapshot) {
	ch := "pub:book:" + b.Provider + ":" + b.Symbol
	w.client.Publish(ctx, ch, string(mustJSON(b)))
}

// PublishBookTicker fans a best-bid/ask snapshot out via PubSub only, on a
// channel distinct from PublishOrderBook's full depth snapshots so C7 can
// tell the two apart and tag sessions with the right dataType.
func (w *Writer) PublishBookTicker(ctx context.Context, b model.OrderBookSnapshot) {
	ch := "pub:bookticker:" + b.Provider + ":" + b.Symbol
	w.client.Publish(ctx, ch, string(mustJSON(b)))
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}

// WriteIndicatorBatch writes multiple indicator results in a single Redis
// pipeline (XADD + SET + PUBLISH for confirmed results; PUBLISH only for
// live/sub-candle preview values). Satisfies model.IndicatorWriter.
func (w *Writer) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) error {
	if len(results) == 0 {
		return nil
	}

	pipe := w.client.Pipeline()
	for i := range results {
		ind := &results[i]
		jsonData := string(ind.JSON())
		pubsubCh := "pub:ind:" + ind.IndicatorID + ":" + ind.Interval + ":" + ind.Provider + ":" + ind.Symbol

		if ind.Live {
			pipe.Publish(ctx, pubsubCh, jsonData)
			continue
		}

		streamKey := ind.StreamKey()
		maxLen := streamBound(ind.Interval)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		latestKey := "latest:" + streamKey
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
		pipe.Publish(ctx, pubsubCh, jsonData)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] indicator batch pipeline error (%d results): %v", len(results), err)
	}
	return err
}

// writeCandle pipelines the XADD + SET-latest + PUBLISH for a single candle.
func (w *Writer) writeCandle(ctx context.Context, c model.Candle) {
	key := c.Key() // "provider:symbol:interval"
	streamKey := "candle:" + key
	latestKey := "latest:" + streamKey
	pubsubCh := "pub:candle:" + key
	jsonData := string(c.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	if c.Closed {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: streamBound(c.Interval),
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
	}
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] candle pipeline error for %s: %v", key, err)
	}
}

// streamBound picks a MAXLEN proportional to interval size so every stream
// retains roughly the same wall-clock window (~6h) regardless of bar size.
func streamBound(interval string) int64 {
	d := model.IntervalDuration(interval)
	if d <= 0 {
		return 2000
	}
	n := int64(6*time.Hour/d) + 100
	if n < 200 {
		n = 200
	}
	return n
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
