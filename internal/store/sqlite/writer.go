package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"cryptoengine/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/journal.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching. It
// is the durability tier behind the audit journal (C8 fills) and the
// indicator-snapshot restore path (C5); it is NOT the canonical candle
// history (Non-goals exclude durable persistence of C3 across restarts) —
// candles are journaled here so cmd/replay can read them back through
// Reader.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer and initializes the database (WAL mode, schema).
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			provider    TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			interval    TEXT    NOT NULL,
			open_time   INTEGER NOT NULL,
			close_time  INTEGER NOT NULL,
			open        TEXT    NOT NULL,
			high        TEXT    NOT NULL,
			low         TEXT    NOT NULL,
			close       TEXT    NOT NULL,
			volume      TEXT    NOT NULL,
			quote_volume TEXT   NOT NULL,
			trade_count INTEGER,
			PRIMARY KEY (provider, symbol, interval, open_time)
		);

		CREATE TABLE IF NOT EXISTS indicator_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%%s', 'now'))
		);

		CREATE TABLE IF NOT EXISTS fills (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id    TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			provider    TEXT    NOT NULL,
			side        TEXT    NOT NULL,
			qty         TEXT    NOT NULL,
			price       TEXT    NOT NULL,
			ts          INTEGER NOT NULL
		);
	`)
	return err
}

// Run reads closed candles from candleCh and inserts them in batched
// transactions, flushing every defaultBatchSize candles or defaultFlushDelay,
// whichever comes first. Blocks until ctx is cancelled or candleCh closes.
// Satisfies model.CandleWriter.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d candles in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			if !c.Closed {
				continue
			}
			batch = append(batch, c)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (w *Writer) insertBatch(candles []model.Candle) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles
			(provider, symbol, interval, open_time, close_time, open, high, low, close, volume, quote_volume, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Provider, c.Symbol, c.Interval, c.OpenTime.Unix(), c.CloseTime.Unix(),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(),
			c.Volume.String(), c.QuoteVolume.String(), c.TradeCount)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SaveSnapshotJSON persists a JSON-encoded indicator-engine snapshot,
// pruning all but the 10 most recent. Satisfies model.SnapshotStore.
func (w *Writer) SaveSnapshotJSON(data []byte) error {
	if _, err := w.db.Exec(`INSERT INTO indicator_snapshots (data) VALUES (?)`, string(data)); err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}
	_, err := w.db.Exec(`DELETE FROM indicator_snapshots WHERE id NOT IN
		(SELECT id FROM indicator_snapshots ORDER BY created_at DESC LIMIT 10)`)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}
	return nil
}

// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
// Satisfies model.SnapshotStore.
func (w *Writer) ReadLatestSnapshotJSON() ([]byte, error) {
	var data string
	err := w.db.QueryRow(`SELECT data FROM indicator_snapshots ORDER BY created_at DESC LIMIT 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// RecordFill appends one executed fill to the audit journal (C8).
func (w *Writer) RecordFill(o model.Order, ts time.Time) error {
	_, err := w.db.Exec(`INSERT INTO fills (order_id, symbol, provider, side, qty, price, ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.OrderID, o.Symbol, o.Provider, o.Side, o.FilledQty.String(), o.AvgPrice.String(), ts.Unix())
	return err
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
