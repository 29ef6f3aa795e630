package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"fastquant/internal/domain"
)

// Compile-time interface check.
var _ BarSource = (*AlpacaSource)(nil)

// AlpacaSource fetches daily bars for one symbol from the Alpaca market-data
// API.
type AlpacaSource struct {
	client *marketdata.Client
	symbol string
	start  time.Time
	end    time.Time
	log    *slog.Logger
}

// NewAlpacaSource creates an AlpacaSource with the given credentials,
// symbol, and date range.
func NewAlpacaSource(apiKey, apiSecret, dataURL, symbol string, start, end time.Time) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{
		client: marketdata.NewClient(opts),
		symbol: strings.ToUpper(symbol),
		start:  start,
		end:    end,
		log:    slog.Default().With("source", "alpaca", "symbol", symbol),
	}
}

// Symbol returns the instrument this source fetches.
func (s *AlpacaSource) Symbol() string { return s.symbol }

// Fetch retrieves the daily bars for the configured symbol and range.
func (s *AlpacaSource) Fetch(ctx context.Context) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	alpacaBars, err := s.client.GetBars(s.symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     s.start,
		End:       s.end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", s.symbol, err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:    s.symbol,
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    float64(ab.Volume),
		})
	}
	s.log.Debug("fetched bars", "count", len(bars))
	return bars, nil
}

// Stream implements BarSource by fetching the full range and replaying it in
// order.
func (s *AlpacaSource) Stream(ctx context.Context, fn func(domain.Bar) bool) error {
	bars, err := s.Fetch(ctx)
	if err != nil {
		return err
	}
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(bar) {
			return nil
		}
	}
	return nil
}
