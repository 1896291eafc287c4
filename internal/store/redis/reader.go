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

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // e.g. "indengine"
	ConsumerName  string // unique per process, e.g. hostname-pid
}

// Reader consumes candle streams via consumer groups (crash-recoverable,
// at-least-once) and manages snapshot storage. Satisfies model.StreamConsumer.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	group := cfg.ConsumerGroup
	if group == "" {
		group = "indengine"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}

	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)", cfg.Addr, group, consumer)
	return &Reader{client: client, consumerGroup: group, consumerName: consumer}, nil
}

// EnsureConsumerGroup creates a consumer group on the given streams,
// starting from "$" (only new messages) if the group doesn't exist yet.
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// ConsumeCandles reads candles from Redis Streams via XREADGROUP and sends
// parsed values to out. Blocks until ctx is cancelled. Satisfies
// model.StreamConsumer.
func (r *Reader) ConsumeCandles(ctx context.Context, streams []string, out chan<- model.Candle) error {
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				if c, ok := decodeCandle(msg.Values); ok {
					select {
					case out <- c:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
			}
		}
	}
}

// RecoverPending claims and replays any unACKed messages left over from a
// previous crash of this same consumer name, for at-least-once delivery.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, out chan<- model.Candle) error {
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream, Group: r.consumerGroup, Start: "-", End: "+", Count: 100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}
			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}
			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream: stream, Group: r.consumerGroup, Consumer: r.consumerName,
				MinIdle: 0, Messages: ids,
			}).Result()
			if err != nil {
				log.Printf("[redis-reader] xclaim error on %s: %v", stream, err)
				break
			}
			for _, msg := range claimed {
				if c, ok := decodeCandle(msg.Values); ok {
					select {
					case out <- c:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
			}
			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return nil
}

// StartPELReclaimer periodically scans for PEL entries idle longer than
// minIdleMs, owned by a now-dead consumer, and steals them via XCLAIM for
// this consumer so no message is lost to a crashed peer.
func (r *Reader) StartPELReclaimer(ctx context.Context, streams []string, group, consumer string,
	interval time.Duration, minIdleMs int64, outCh chan<- model.Candle, onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, stream := range streams {
				claimed, err := r.reclaimStale(ctx, stream, group, consumer, minIdleMs)
				if err != nil {
					log.Printf("[redis-reader] PEL reclaim error on %s: %v", stream, err)
					continue
				}
				for _, msg := range claimed {
					if c, ok := decodeCandle(msg.Values); ok {
						select {
						case outCh <- c:
						case <-ctx.Done():
							return
						}
					}
					r.client.XAck(ctx, stream, group, msg.ID)
					total++
				}
			}
			if total > 0 && onReclaim != nil {
				onReclaim(total)
			}
		}
	}
}

func (r *Reader) reclaimStale(ctx context.Context, stream, group, consumer string, minIdleMs int64) ([]goredis.XMessage, error) {
	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream, Group: group, Start: "-", End: "+", Count: 50,
		Idle: time.Duration(minIdleMs) * time.Millisecond,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}
	var staleIDs []string
	for _, p := range pending {
		if p.Consumer != consumer {
			staleIDs = append(staleIDs, p.ID)
		}
	}
	if len(staleIDs) == 0 {
		return nil, nil
	}
	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream: stream, Group: group, Consumer: consumer,
		MinIdle: time.Duration(minIdleMs) * time.Millisecond, Messages: staleIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", stream, err)
	}
	return claimed, nil
}

// ReplayFromID reads all messages from a stream strictly after startID, used
// to replay candles recorded since the last indicator snapshot.
func (r *Reader) ReplayFromID(ctx context.Context, stream, startID string, out chan<- model.Candle) (string, error) {
	lastID := startID
	for {
		results, err := r.client.XRange(ctx, stream, "("+lastID, "+").Result()
		if err != nil {
			return lastID, fmt.Errorf("xrange %s from %s: %w", stream, lastID, err)
		}
		if len(results) == 0 {
			break
		}
		for _, msg := range results {
			if c, ok := decodeCandle(msg.Values); ok {
				select {
				case out <- c:
				case <-ctx.Done():
					return lastID, ctx.Err()
				}
			}
			lastID = msg.ID
		}
		if len(results) < 1000 {
			break
		}
	}
	return lastID, nil
}

// DiscoverStreams finds candle streams that exist for every (interval,
// symbol) combination requested.
func (r *Reader) DiscoverStreams(ctx context.Context, intervals []string, symbols []string) []string {
	var streams []string
	for _, iv := range intervals {
		for _, sym := range symbols {
			stream := "candle:" + sym + ":" + iv
			if n, err := r.client.Exists(ctx, stream).Result(); err == nil && n > 0 {
				streams = append(streams, stream)
			}
		}
	}
	return streams
}

// SubscribeChannel subscribes to a Redis Pub/Sub channel and blocks until
// the subscription is confirmed; the caller drains pubsub.Channel().
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) *goredis.PubSub {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("[redis-reader] subscribe to %s failed: %v", channel, err)
		pubsub.Close()
		return nil
	}
	return pubsub
}

// PSubscribeChannel subscribes to a Redis Pub/Sub pattern (e.g. "pub:candle:*").
func (r *Reader) PSubscribeChannel(ctx context.Context, pattern string) *goredis.PubSub {
	return r.client.PSubscribe(ctx, pattern)
}

func decodeCandle(values map[string]interface{}) (model.Candle, bool) {
	data, ok := values["data"].(string)
	if !ok {
		return model.Candle{}, false
	}
	var c model.Candle
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		log.Printf("[redis-reader] unmarshal candle: %v", err)
		return model.Candle{}, false
	}
	return c, true
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
