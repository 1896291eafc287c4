package model

import (
	"context"
	"time"
)

// ── Storage / transport port interfaces ──
// These decouple business logic from concrete storage/transport
// implementations (Redis Streams/PubSub, SQLite, in-process ring buffers).
// Each implementation satisfies one or more of these interfaces.

// CandleWriter publishes closed and in-progress candles to the
// inter-process transport (C1/C2 -> C3/C5 boundary).
type CandleWriter interface {
	// Run reads candles from candleCh and writes them. Blocks until ctx is
	// cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)

	// Close releases underlying resources.
	Close() error
}

// CandleReader reads historical candles for backfill and replay.
type CandleReader interface {
	// ReadCandles reads candles for a (provider, symbol, interval) after a
	// given open time.
	ReadCandles(provider, symbol, interval string, afterTS int64) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// IndicatorWriter publishes indicator results to the broadcast layer (C5/C6
// -> C7 boundary).
type IndicatorWriter interface {
	// WriteIndicatorBatch writes multiple indicator results in a single batch.
	WriteIndicatorBatch(ctx context.Context, results []IndicatorResult) error

	// Close releases underlying resources.
	Close() error
}

// SnapshotStore reads and writes indicator engine snapshots as raw JSON.
// Using []byte avoids a model->indicator->model import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}

// StreamConsumer consumes candles from a stream (e.g. Redis Streams)
// between process boundaries, with crash-recovery via consumer groups.
type StreamConsumer interface {
	// ConsumeCandles reads candles via consumer groups. Blocks until ctx is
	// cancelled.
	ConsumeCandles(ctx context.Context, streams []string, out chan<- Candle) error

	// RecoverPending processes any unACKed messages from a previous crash.
	RecoverPending(ctx context.Context, streams []string, out chan<- Candle) error

	// EnsureConsumerGroup creates consumer groups on streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// ReplayFromID reads all messages from a stream starting at a given ID.
	ReplayFromID(ctx context.Context, stream, startID string, out chan<- Candle) (string, error)

	// DiscoverStreams finds streams matching known intervals and symbols.
	DiscoverStreams(ctx context.Context, intervals []string, symbols []string) []string

	// StartPELReclaimer runs periodic reclamation of stale PEL entries.
	StartPELReclaimer(ctx context.Context, streams []string, group, consumer string,
		interval time.Duration, minIdleMs int64, outCh chan<- Candle, onReclaim func(count int))

	// Close releases underlying resources.
	Close() error
}
