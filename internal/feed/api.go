package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"fastquant/internal/domain"
	"fastquant/internal/util"
)

// FieldMap maps candle fields to JSON object keys or, for array-shaped
// entries such as Binance klines, to decimal array indices.
type FieldMap struct {
	Timestamp string
	Open      string
	High      string
	Low       string
	Close     string
	Volume    string
	Symbol    string
}

// DefaultFieldMap returns the conventional object-key mapping.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Timestamp: "timestamp",
		Open:      "open",
		High:      "high",
		Low:       "low",
		Close:     "close",
		Volume:    "volume",
		Symbol:    "symbol",
	}
}

// APIConfig describes an HTTP JSON candle endpoint.
type APIConfig struct {
	Endpoint string
	Headers  map[string]string
	Query    map[string]string
	// DataField optionally names the top-level field holding the candle
	// array; an empty value means the payload itself is the array.
	DataField string
	Fields    FieldMap
	// FallbackSymbol is applied to candles whose payload carries no symbol.
	FallbackSymbol string
}

// Compile-time interface check.
var _ BarSource = (*APISource)(nil)

// APISource fetches candles from an HTTP JSON API. Requests are retried
// with exponential backoff and optionally throttled by a shared rate
// limiter.
type APISource struct {
	cfg     APIConfig
	client  *http.Client
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewAPISource creates an APISource for the given endpoint configuration.
// limiter may be nil to disable throttling.
func NewAPISource(cfg APIConfig, limiter *util.RateLimiter) *APISource {
	if cfg.Fields == (FieldMap{}) {
		cfg.Fields = DefaultFieldMap()
	}
	return &APISource{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		log:     slog.Default().With("source", "api"),
	}
}

// Fetch retrieves and parses all candles from the endpoint.
func (s *APISource) Fetch(ctx context.Context) ([]domain.Bar, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var payload []byte
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var err error
		payload, err = s.get(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", s.cfg.Endpoint, err)
	}
	return s.parseCandles(payload)
}

// Stream implements BarSource by fetching the full payload and replaying it
// in order.
func (s *APISource) Stream(ctx context.Context, fn func(domain.Bar) bool) error {
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

func (s *APISource) get(ctx context.Context) ([]byte, error) {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	q := u.Query()
	for k, v := range s.cfg.Query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (s *APISource) parseCandles(payload []byte) ([]domain.Bar, error) {
	var root any
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	if s.cfg.DataField != "" {
		node, err := resolveField(root, s.cfg.DataField)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, fmt.Errorf("payload missing data field %q", s.cfg.DataField)
		}
		root = node
	}

	entries, ok := root.([]any)
	if !ok {
		return nil, fmt.Errorf("expected candle array, got %T", root)
	}

	bars := make([]domain.Bar, 0, len(entries))
	for i, entry := range entries {
		bar, err := s.parseCandle(entry)
		if err != nil {
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (s *APISource) parseCandle(entry any) (domain.Bar, error) {
	ts, err := timestampField(entry, s.cfg.Fields.Timestamp)
	if err != nil {
		return domain.Bar{}, err
	}

	bar := domain.Bar{Timestamp: ts}
	for _, f := range []struct {
		field string
		dst   *float64
	}{
		{s.cfg.Fields.Open, &bar.Open},
		{s.cfg.Fields.High, &bar.High},
		{s.cfg.Fields.Low, &bar.Low},
		{s.cfg.Fields.Close, &bar.Close},
		{s.cfg.Fields.Volume, &bar.Volume},
	} {
		v, err := numericField(entry, f.field)
		if err != nil {
			return domain.Bar{}, err
		}
		*f.dst = v
	}

	if s.cfg.Fields.Symbol != "" {
		if node, err := resolveField(entry, s.cfg.Fields.Symbol); err == nil {
			if sym, ok := node.(string); ok {
				bar.Symbol = sym
			}
		}
	}
	if bar.Symbol == "" {
		bar.Symbol = s.cfg.FallbackSymbol
	}
	return bar, nil
}

// resolveField looks up a field in a JSON object by key, or in a JSON array
// by decimal index.
func resolveField(entry any, field string) (any, error) {
	switch node := entry.(type) {
	case map[string]any:
		return node[field], nil
	case []any:
		idx, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("field %q must be numeric for array payloads", field)
		}
		if idx < 0 || idx >= len(node) {
			return nil, nil
		}
		return node[idx], nil
	default:
		return nil, nil
	}
}

func numericField(entry any, field string) (float64, error) {
	node, err := resolveField(entry, field)
	if err != nil {
		return 0, err
	}
	switch v := node.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", field, err)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("missing numeric field %q", field)
	default:
		return 0, fmt.Errorf("field %q has unsupported type %T", field, node)
	}
}

func timestampField(entry any, field string) (time.Time, error) {
	node, err := resolveField(entry, field)
	if err != nil {
		return time.Time{}, err
	}
	switch v := node.(type) {
	case string:
		ts, ok := ParseTimestamp(v)
		if !ok {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
		}
		return ts, nil
	case float64:
		// JSON numbers arrive as float64; epoch magnitude decides the unit.
		n := int64(v)
		if n > epochMsThreshold || n < -epochMsThreshold {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	case nil:
		return time.Time{}, fmt.Errorf("missing timestamp field %q", field)
	default:
		return time.Time{}, fmt.Errorf("timestamp field %q has unsupported type %T", field, node)
	}
}
