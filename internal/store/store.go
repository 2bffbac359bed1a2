// Package store persists backtest results to PostgreSQL. It is an
// optional sink next to the CSV outputs: absent a DSN the backtester
// behaves identically without it.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/quantlab/nbboflow/internal/backtest"
)

// DefaultTimeout bounds each statement.
const DefaultTimeout = 30 * time.Second

// Store wraps the results database.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect results db: %w", err)
	}
	return &Store{db: db, timeout: DefaultTimeout}, nil
}

// NewWithDB wraps an existing connection (used by tests).
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db, timeout: DefaultTimeout}
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the result tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS bt_trades (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			year INT NOT NULL,
			ts_in BIGINT NOT NULL,
			ts_out BIGINT NOT NULL,
			day INT NOT NULL,
			mid_in DOUBLE PRECISION NOT NULL,
			mid_out DOUBLE PRECISION NOT NULL,
			spread_in DOUBLE PRECISION NOT NULL,
			direction_score DOUBLE PRECISION NOT NULL,
			expected_edge_ret DOUBLE PRECISION NOT NULL,
			cost_ret DOUBLE PRECISION NOT NULL,
			gross_ret DOUBLE PRECISION NOT NULL,
			net_ret DOUBLE PRECISION NOT NULL,
			side INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bt_daily_pnl (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			year INT NOT NULL,
			day INT NOT NULL,
			num_trades BIGINT NOT NULL,
			gross_ret_sum DOUBLE PRECISION NOT NULL,
			net_ret_sum DOUBLE PRECISION NOT NULL,
			gross_ret_mean DOUBLE PRECISION NOT NULL,
			net_ret_mean DOUBLE PRECISION NOT NULL,
			cumulative_net_ret DOUBLE PRECISION NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveYear replaces one year's trades and daily rows atomically.
func (s *Store) SaveYear(ctx context.Context, symbol string, year uint32,
	trades []backtest.TradeRecord, daily []backtest.DailyPnlRow) error {

	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(trades)/1000+1))
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bt_trades WHERE symbol = $1 AND year = $2`, symbol, year); err != nil {
		return fmt.Errorf("clear trades: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bt_daily_pnl WHERE symbol = $1 AND year = $2`, symbol, year); err != nil {
		return fmt.Errorf("clear daily pnl: %w", err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bt_trades (symbol, year, ts_in, ts_out, day, mid_in, mid_out,
			spread_in, direction_score, expected_edge_ret, cost_ret, gross_ret, net_ret, side)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`)
	if err != nil {
		return fmt.Errorf("prepare trades insert: %w", err)
	}
	defer tradeStmt.Close()

	for _, t := range trades {
		if _, err := tradeStmt.ExecContext(ctx,
			symbol, year, int64(t.TsIn), int64(t.TsOut), t.Day,
			t.MidIn, t.MidOut, t.SpreadIn, t.DirectionScore,
			t.ExpectedEdgeRet, t.CostRet, t.GrossRet, t.NetRet, t.Side); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	dailyStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bt_daily_pnl (symbol, year, day, num_trades, gross_ret_sum,
			net_ret_sum, gross_ret_mean, net_ret_mean, cumulative_net_ret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("prepare daily insert: %w", err)
	}
	defer dailyStmt.Close()

	for _, r := range daily {
		if _, err := dailyStmt.ExecContext(ctx,
			symbol, year, r.Day, int64(r.NumTrades), r.GrossRetSum,
			r.NetRetSum, r.GrossRetMean, r.NetRetMean, r.CumulativeNetRet); err != nil {
			return fmt.Errorf("insert daily pnl: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}
