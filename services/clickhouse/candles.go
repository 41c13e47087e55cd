// Package clickhouse stores and retrieves candle series. The table uses
// ReplacingMergeTree keyed by (symbol, open_time_ms) so re-ingesting a range
// is idempotent.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"

	"reversal-backtest/services/config"
	"reversal-backtest/services/engine"
)

type Store struct {
	conn     ch.Conn
	database string
	table    string
}

func Open(ctx context.Context, cfg config.ClickHouseConfig) (*Store, error) {
	conn, err := ch.Open(&ch.Options{
		Addr: []string{cfg.Addr},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: ch.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Store{conn: conn, database: cfg.Database, table: cfg.Table}, nil
}

func (s *Store) Close() error { return s.conn.Close() }

// EnsureSchema creates the database and candle table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			symbol String,
			open_time_ms UInt64,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, open_time_ms)
		SETTINGS index_granularity = 8192
	`, s.database, s.table)
	return s.conn.Exec(ctx, ddl)
}

// InsertCandles appends a series for one symbol in a single batch. The batch
// carries one version stamp; ReplacingMergeTree keeps the newest row per key.
func (s *Store) InsertCandles(ctx context.Context, symbol string, candles []engine.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s.%s SETTINGS insert_deduplicate=1", s.database, s.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, c := range candles {
		if err := batch.Append(
			symbol,
			uint64(c.Timestamp),
			c.Open.InexactFloat64(),
			c.High.InexactFloat64(),
			c.Low.InexactFloat64(),
			c.Close.InexactFloat64(),
			c.Volume.InexactFloat64(),
			now,
			ver,
		); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %w", err)
	}
	return nil
}

// QueryCandles returns the symbol's candles in [fromMs, toMs), ordered by
// open time. FINAL collapses ReplacingMergeTree duplicates at read time.
func (s *Store) QueryCandles(ctx context.Context, symbol string, fromMs, toMs int64) ([]engine.Candle, error) {
	q := fmt.Sprintf(`
		SELECT open_time_ms, open, high, low, close, volume
		FROM %s.%s FINAL
		WHERE symbol = ? AND open_time_ms >= ? AND open_time_ms < ?
		ORDER BY open_time_ms
	`, s.database, s.table)
	rows, err := s.conn.Query(ctx, q, symbol, uint64(fromMs), uint64(toMs))
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []engine.Candle
	for rows.Next() {
		var ts uint64
		var open, high, low, closep, vol float64
		if err := rows.Scan(&ts, &open, &high, &low, &closep, &vol); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, engine.Candle{
			Timestamp: int64(ts),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(closep),
			Volume:    decimal.NewFromFloat(vol),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
