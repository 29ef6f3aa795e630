// Package feed provides bar sources for backtests: in-memory slices, CSV
// files, generic JSON HTTP APIs, and the Alpaca market-data API.
package feed

import (
	"context"

	"fastquant/internal/domain"
)

// BarSource produces a lazy, finite, forward-only sequence of bars. Stream
// invokes fn for every bar in order and stops early when fn returns false.
// A source is restartable only by calling Stream again; implementations
// must not retain state across calls that would reorder or skip bars.
type BarSource interface {
	Stream(ctx context.Context, fn func(domain.Bar) bool) error
}

// SourceFactory opens a fresh BarSource for one run. Parallel runs call the
// factory once per strategy so file-backed sources are re-opened rather than
// shared.
type SourceFactory func() BarSource

// SliceSource streams bars from an in-memory slice. The slice is only read,
// so one SliceSource may safely back any number of concurrent runs.
type SliceSource struct {
	Bars []domain.Bar
}

// NewSliceSource creates a SliceSource over the given bars.
func NewSliceSource(bars []domain.Bar) *SliceSource {
	return &SliceSource{Bars: bars}
}

// Stream implements BarSource.
func (s *SliceSource) Stream(ctx context.Context, fn func(domain.Bar) bool) error {
	for _, bar := range s.Bars {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(bar) {
			return nil
		}
	}
	return nil
}
