// Package store persists bar data and completed run results: Parquet files
// for the bar cache and SQLite for run summaries and trade logs.
package store

import (
	"context"
	"time"

	"fastquant/internal/domain"
	"fastquant/internal/report"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, merged with any already stored.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord is a persisted backtest run: its summary plus the trade log.
type RunRecord struct {
	ID        int64
	CreatedAt time.Time
	Summary   report.Summary
	Trades    []domain.Trade
}

// RunStore persists and retrieves completed backtest runs.
type RunStore interface {
	// SaveRun persists a run summary with its trades and returns the new
	// run's ID.
	SaveRun(ctx context.Context, summary report.Summary, trades []domain.Trade) (int64, error)

	// GetRun retrieves one run with its full trade log.
	GetRun(ctx context.Context, id int64) (*RunRecord, error)

	// ListRuns returns the most recent runs, newest first, without trade
	// logs. limit <= 0 means no limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}
