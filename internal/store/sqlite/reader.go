package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"cryptoengine/internal/fixedpoint"
	"cryptoengine/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to the candle journal, used by
// cmd/replay to load the candles it replays.
// Satisfies model.CandleReader.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles reads closed candles for (provider, symbol, interval) with
// open_time strictly after afterTS (unix seconds), ordered ascending.
// Satisfies model.CandleReader.
func (r *Reader) ReadCandles(provider, symbol, interval string, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT provider, symbol, interval, open_time, close_time, open, high, low, close, volume, quote_volume, trade_count
		FROM candles
		WHERE provider = ? AND symbol = ? AND interval = ? AND open_time > ?
		ORDER BY open_time ASC
	`, provider, symbol, interval, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var openTS, closeTS int64
		var openS, highS, lowS, closeS, volS, qvolS string
		var tradeCount sql.NullInt64
		if err := rows.Scan(&c.Provider, &c.Symbol, &c.Interval, &openTS, &closeTS,
			&openS, &highS, &lowS, &closeS, &volS, &qvolS, &tradeCount); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}

		c.OpenTime = time.Unix(openTS, 0).UTC()
		c.CloseTime = time.Unix(closeTS, 0).UTC()
		c.Closed = true
		c.TradeCount = tradeCount.Int64

		var perr error
		if c.Open, perr = fixedpoint.FromString(openS); perr != nil {
			return nil, fmt.Errorf("sqlite parse open: %w", perr)
		}
		if c.High, perr = fixedpoint.FromString(highS); perr != nil {
			return nil, fmt.Errorf("sqlite parse high: %w", perr)
		}
		if c.Low, perr = fixedpoint.FromString(lowS); perr != nil {
			return nil, fmt.Errorf("sqlite parse low: %w", perr)
		}
		if c.Close, perr = fixedpoint.FromString(closeS); perr != nil {
			return nil, fmt.Errorf("sqlite parse close: %w", perr)
		}
		if c.Volume, perr = fixedpoint.FromString(volS); perr != nil {
			return nil, fmt.Errorf("sqlite parse volume: %w", perr)
		}
		if c.QuoteVolume, perr = fixedpoint.FromString(qvolS); perr != nil {
			return nil, fmt.Errorf("sqlite parse quote volume: %w", perr)
		}

		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
