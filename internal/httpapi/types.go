package httpapi

import "fastquant/internal/report"

// loadRequest is the body of POST /api/load.
type loadRequest struct {
	// Source is one of "csv", "api", or "alpaca". Defaults to "csv".
	Source string `json:"source"`

	// CSV settings.
	Path      string `json:"path,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
	HasHeader *bool  `json:"has_header,omitempty"`

	// API / Alpaca settings.
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
}

// loadResponse reports what was loaded into the session.
type loadResponse struct {
	Rows   int    `json:"rows"`
	Symbol string `json:"symbol,omitempty"`
}

// runStrategyRequest configures one strategy for POST /api/run.
type runStrategyRequest struct {
	Name        string  `json:"name,omitempty"`
	Type        string  `json:"type"`
	ShortWindow int     `json:"short_window,omitempty"`
	LongWindow  int     `json:"long_window,omitempty"`
	Lookback    int     `json:"lookback,omitempty"`
	Buffer      float64 `json:"buffer,omitempty"`
	AllowShort  bool    `json:"allow_short,omitempty"`
	OrderQty    float64 `json:"order_qty,omitempty"`
}

// runRequest is the body of POST /api/run. An empty strategy list falls back
// to the server's configured strategies.
type runRequest struct {
	Strategies         []runStrategyRequest `json:"strategies,omitempty"`
	InitialCapital     float64              `json:"initial_capital,omitempty"`
	DefaultSlippageBps float64              `json:"default_slippage_bps,omitempty"`
	CommissionPerUnit  float64              `json:"commission_per_unit,omitempty"`
	CommissionBps      float64              `json:"commission_bps,omitempty"`
	Persist            bool                 `json:"persist,omitempty"`
}

// equityPoint is one chart point of the serialized equity curve.
type equityPoint struct {
	Time   int64   `json:"time"` // Unix seconds
	Equity float64 `json:"equity"`
}

// tradeView is a trade row in API responses.
type tradeView struct {
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

// runResponse is one strategy's outcome in the POST /api/run response.
type runResponse struct {
	RunID        int64          `json:"run_id,omitempty"`
	Summary      report.Summary `json:"summary"`
	EquityCurve  []equityPoint  `json:"equity_curve"`
	RecentTrades []tradeView    `json:"recent_trades"`
	Error        string         `json:"error,omitempty"`
}

// runListItem is one entry of GET /api/runs.
type runListItem struct {
	ID        int64          `json:"id"`
	CreatedAt string         `json:"created_at"`
	Summary   report.Summary `json:"summary"`
}

// runDetail is the body of GET /api/runs/{id}.
type runDetail struct {
	ID        int64          `json:"id"`
	CreatedAt string         `json:"created_at"`
	Summary   report.Summary `json:"summary"`
	Trades    []tradeView    `json:"trades"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// wsEvent is a message broadcast to WebSocket clients.
type wsEvent struct {
	Type     string `json:"type"`
	Strategy string `json:"strategy,omitempty"`
	RunID    int64  `json:"run_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}
