// Package fastquant provides a Go SDK for the fastquant-server HTTP API.
package fastquant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fastquant/internal/report"
)

// Client talks to a fastquant-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadRequest selects a data source to load into the server session.
type LoadRequest struct {
	// Source is one of "csv", "api", or "alpaca". Defaults to "csv".
	Source string `json:"source"`

	Path      string `json:"path,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
	HasHeader *bool  `json:"has_header,omitempty"`

	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
}

// LoadResult reports what the server loaded.
type LoadResult struct {
	Rows   int    `json:"rows"`
	Symbol string `json:"symbol,omitempty"`
}

// StrategySpec configures one strategy for a run.
type StrategySpec struct {
	Name        string  `json:"name,omitempty"`
	Type        string  `json:"type"`
	ShortWindow int     `json:"short_window,omitempty"`
	LongWindow  int     `json:"long_window,omitempty"`
	Lookback    int     `json:"lookback,omitempty"`
	Buffer      float64 `json:"buffer,omitempty"`
	AllowShort  bool    `json:"allow_short,omitempty"`
	OrderQty    float64 `json:"order_qty,omitempty"`
}

// RunRequest configures a backtest over the loaded session data.
type RunRequest struct {
	Strategies         []StrategySpec `json:"strategies,omitempty"`
	InitialCapital     float64        `json:"initial_capital,omitempty"`
	DefaultSlippageBps float64        `json:"default_slippage_bps,omitempty"`
	CommissionPerUnit  float64        `json:"commission_per_unit,omitempty"`
	CommissionBps      float64        `json:"commission_bps,omitempty"`
	Persist            bool           `json:"persist,omitempty"`
}

// EquityPoint is one chart point of an equity curve.
type EquityPoint struct {
	Time   int64   `json:"time"` // Unix seconds
	Equity float64 `json:"equity"`
}

// Trade is a trade row in API responses.
type Trade struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"` // Unix seconds
	Fee       float64 `json:"fee"`
	Slippage  float64 `json:"slippage"`
}

// RunResult is one strategy's outcome.
type RunResult struct {
	RunID        int64          `json:"run_id,omitempty"`
	Summary      report.Summary `json:"summary"`
	EquityCurve  []EquityPoint  `json:"equity_curve"`
	RecentTrades []Trade        `json:"recent_trades"`
	Error        string         `json:"error,omitempty"`
}

// RunListItem is one entry of the run listing.
type RunListItem struct {
	ID        int64          `json:"id"`
	CreatedAt string         `json:"created_at"`
	Summary   report.Summary `json:"summary"`
}

// RunDetail is a persisted run with its full trade log.
type RunDetail struct {
	ID        int64          `json:"id"`
	CreatedAt string         `json:"created_at"`
	Summary   report.Summary `json:"summary"`
	Trades    []Trade        `json:"trades"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Examples lists the example data files the server knows about.
func (c *Client) Examples(ctx context.Context) ([]string, error) {
	var examples []string
	err := c.do(ctx, http.MethodGet, "/api/examples", nil, &examples)
	return examples, err
}

// Load loads candle data into the server session.
func (c *Client) Load(ctx context.Context, req LoadRequest) (*LoadResult, error) {
	var result LoadResult
	if err := c.do(ctx, http.MethodPost, "/api/load", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Run executes the given strategies over the loaded session data.
func (c *Client) Run(ctx context.Context, req RunRequest) ([]RunResult, error) {
	var results []RunResult
	if err := c.do(ctx, http.MethodPost, "/api/run", req, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ListRuns returns persisted runs, newest first. limit <= 0 returns all.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunListItem, error) {
	path := "/api/runs"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var items []RunListItem
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetRun retrieves one persisted run with its trade log.
func (c *Client) GetRun(ctx context.Context, id int64) (*RunDetail, error) {
	var detail RunDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/runs/%d", id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil {
			apiErr.Message = errBody.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
