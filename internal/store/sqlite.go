package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fastquant/internal/domain"
	"fastquant/internal/report"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at      TEXT NOT NULL,
	strategy_name   TEXT NOT NULL,
	initial_capital REAL NOT NULL,
	final_equity    REAL NOT NULL,
	total_return    REAL NOT NULL,
	realized_pnl    REAL NOT NULL,
	unrealized_pnl  REAL NOT NULL,
	max_drawdown    REAL NOT NULL,
	peak_equity     REAL NOT NULL,
	trough_equity   REAL NOT NULL,
	trades          INTEGER NOT NULL,
	winning_trades  INTEGER NOT NULL,
	losing_trades   INTEGER NOT NULL,
	win_rate        REAL NOT NULL,
	total_fees      REAL NOT NULL,
	total_slippage  REAL NOT NULL,
	orders_filled   INTEGER NOT NULL,
	orders_rejected INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_trades (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id    INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	trade_id  TEXT NOT NULL,
	order_id  TEXT NOT NULL,
	side      TEXT NOT NULL,
	type      TEXT NOT NULL,
	price     REAL NOT NULL,
	qty       REAL NOT NULL,
	symbol    TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	fee       REAL NOT NULL,
	slippage  REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_trades_run_id ON run_trades(run_id);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun persists the summary and its trades in one transaction and returns
// the new run's ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, summary report.Summary, trades []domain.Trade) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			created_at, strategy_name, initial_capital, final_equity,
			total_return, realized_pnl, unrealized_pnl, max_drawdown,
			peak_equity, trough_equity, trades, winning_trades,
			losing_trades, win_rate, total_fees, total_slippage,
			orders_filled, orders_rejected
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339),
		summary.StrategyName,
		summary.InitialCapital,
		summary.FinalEquity,
		summary.TotalReturn,
		summary.RealizedPnl,
		summary.UnrealizedPnl,
		summary.MaxDrawdown,
		summary.PeakEquity,
		summary.TroughEquity,
		summary.Trades,
		summary.WinningTrades,
		summary.LosingTrades,
		summary.WinRate,
		summary.TotalFees,
		summary.TotalSlippage,
		summary.OrdersFilled,
		summary.OrdersRejected,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades (
			run_id, trade_id, order_id, side, type, price, qty, symbol,
			timestamp, fee, slippage
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, tr := range trades {
		if _, err := stmt.ExecContext(ctx,
			runID, tr.ID, tr.OrderID, string(tr.Side), string(tr.Type),
			tr.Price, tr.Qty, tr.Symbol,
			tr.Timestamp.UTC().Format(time.RFC3339), tr.Fee, tr.Slippage,
		); err != nil {
			return 0, fmt.Errorf("inserting trade %s: %w", tr.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// GetRun retrieves one run with its trade log. Returns ErrRunNotFound for an
// unknown ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, strategy_name, initial_capital, final_equity,
			total_return, realized_pnl, unrealized_pnl, max_drawdown,
			peak_equity, trough_equity, trades, winning_trades,
			losing_trades, win_rate, total_fees, total_slippage,
			orders_filled, orders_rejected
		FROM runs WHERE id = ?`, id)

	rec, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, order_id, side, type, price, qty, symbol,
			timestamp, fee, slippage
		FROM run_trades WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tr domain.Trade
		var side, typ, ts string
		if err := rows.Scan(&tr.ID, &tr.OrderID, &side, &typ, &tr.Price,
			&tr.Qty, &tr.Symbol, &ts, &tr.Fee, &tr.Slippage); err != nil {
			return nil, err
		}
		tr.Side = domain.Side(side)
		tr.Type = domain.OrderType(typ)
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			tr.Timestamp = parsed
		}
		rec.Trades = append(rec.Trades, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRuns returns the most recent runs, newest first, without trade logs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, created_at, strategy_name, initial_capital, final_equity,
			total_return, realized_pnl, unrealized_pnl, max_drawdown,
			peak_equity, trough_equity, trades, winning_trades,
			losing_trades, win_rate, total_fees, total_slippage,
			orders_filled, orders_rejected
		FROM runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var rec RunRecord
	var createdAt string
	if err := s.Scan(
		&rec.ID, &createdAt,
		&rec.Summary.StrategyName,
		&rec.Summary.InitialCapital,
		&rec.Summary.FinalEquity,
		&rec.Summary.TotalReturn,
		&rec.Summary.RealizedPnl,
		&rec.Summary.UnrealizedPnl,
		&rec.Summary.MaxDrawdown,
		&rec.Summary.PeakEquity,
		&rec.Summary.TroughEquity,
		&rec.Summary.Trades,
		&rec.Summary.WinningTrades,
		&rec.Summary.LosingTrades,
		&rec.Summary.WinRate,
		&rec.Summary.TotalFees,
		&rec.Summary.TotalSlippage,
		&rec.Summary.OrdersFilled,
		&rec.Summary.OrdersRejected,
	); err != nil {
		return nil, err
	}
	if parsed, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = parsed
	}
	return &rec, nil
}
