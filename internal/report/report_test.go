package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"fastquant/internal/domain"
	"fastquant/internal/engine"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// resultWithTrades builds a Result whose portfolio reflects the given trades.
func resultWithTrades(initial float64, trades []domain.Trade, curve []float64) *engine.Result {
	pf := engine.NewPortfolio(initial)
	for _, tr := range trades {
		pf.ApplyTrade(tr)
	}
	ts := make([]time.Time, len(curve))
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range ts {
		ts[i] = base.Add(time.Duration(i) * 24 * time.Hour)
	}
	return &engine.Result{
		StrategyName:     "test-strat",
		InitialCapital:   initial,
		Trades:           trades,
		EquityCurve:      curve,
		EquityTimestamps: ts,
		CandlesProcessed: len(curve),
		OrdersFilled:     len(trades),
		Portfolio:        pf,
	}
}

func trade(side domain.Side, price, qty float64) domain.Trade {
	return domain.Trade{
		ID: "t", OrderID: "o", Side: side, Type: domain.OrderTypeMarket,
		Price: price, Qty: qty, Symbol: "TEST",
		Timestamp: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestSummarizeRoundTrip(t *testing.T) {
	trades := []domain.Trade{
		trade(domain.SideBuy, 100, 10),
		trade(domain.SideSell, 110, 10),
	}
	res := resultWithTrades(10000, trades, []float64{10000, 10050, 10100})

	s := Summarize(res)
	if s.StrategyName != "test-strat" {
		t.Errorf("StrategyName = %q", s.StrategyName)
	}
	if !almostEqual(s.RealizedPnl, 100) {
		t.Errorf("RealizedPnl = %v, want 100", s.RealizedPnl)
	}
	if !almostEqual(s.FinalEquity, 10100) {
		t.Errorf("FinalEquity = %v, want 10100", s.FinalEquity)
	}
	if !almostEqual(s.TotalReturn, 0.01) {
		t.Errorf("TotalReturn = %v, want 0.01", s.TotalReturn)
	}
	if s.Trades != 2 {
		t.Errorf("Trades = %d, want 2", s.Trades)
	}
	// The opening buy realizes nothing; only the closing sell is classified.
	if s.WinningTrades != 1 || s.LosingTrades != 0 {
		t.Errorf("wins/losses = %d/%d, want 1/0", s.WinningTrades, s.LosingTrades)
	}
	if !almostEqual(s.WinRate, 1) {
		t.Errorf("WinRate = %v, want 1", s.WinRate)
	}
}

func TestSummarizeDrawdown(t *testing.T) {
	// Peak 120 then trough 80: drawdown 40. The later recovery to 110 sets
	// no new peak, so the max holds.
	res := resultWithTrades(100, nil, []float64{100, 120, 95, 80, 110})
	s := Summarize(res)
	if !almostEqual(s.MaxDrawdown, 40) {
		t.Errorf("MaxDrawdown = %v, want 40", s.MaxDrawdown)
	}
	if !almostEqual(s.PeakEquity, 120) {
		t.Errorf("PeakEquity = %v, want 120", s.PeakEquity)
	}
	if !almostEqual(s.TroughEquity, 80) {
		t.Errorf("TroughEquity = %v, want 80", s.TroughEquity)
	}
}

func TestSummarizeDrawdownResetsOnNewPeak(t *testing.T) {
	// A deeper relative drop after a new peak wins over the earlier one.
	res := resultWithTrades(100, nil, []float64{100, 90, 150, 95})
	s := Summarize(res)
	if !almostEqual(s.MaxDrawdown, 55) {
		t.Errorf("MaxDrawdown = %v, want 55", s.MaxDrawdown)
	}
}

func TestSummarizeMonotonicCurveNoDrawdown(t *testing.T) {
	res := resultWithTrades(100, nil, []float64{100, 105, 110})
	s := Summarize(res)
	if !almostEqual(s.MaxDrawdown, 0) {
		t.Errorf("MaxDrawdown = %v, want 0", s.MaxDrawdown)
	}
}

func TestSummarizeEmptyCurve(t *testing.T) {
	res := resultWithTrades(5000, nil, nil)
	s := Summarize(res)
	if !almostEqual(s.MaxDrawdown, 0) || !almostEqual(s.PeakEquity, 5000) {
		t.Errorf("summary = %+v, want drawdown 0 around initial capital", s)
	}
	if s.WinRate != 0 {
		t.Errorf("WinRate = %v, want 0 with no trades", s.WinRate)
	}
}

func TestSummarizeLossClassification(t *testing.T) {
	trades := []domain.Trade{
		trade(domain.SideBuy, 100, 10),
		trade(domain.SideSell, 90, 10), // loss
		trade(domain.SideBuy, 80, 5),
		trade(domain.SideSell, 95, 5), // win
	}
	res := resultWithTrades(10000, trades, []float64{10000})
	s := Summarize(res)
	if s.WinningTrades != 1 || s.LosingTrades != 1 {
		t.Errorf("wins/losses = %d/%d, want 1/1", s.WinningTrades, s.LosingTrades)
	}
	if !almostEqual(s.WinRate, 0.5) {
		t.Errorf("WinRate = %v, want 0.5", s.WinRate)
	}
}

func TestWriteJSON(t *testing.T) {
	trades := []domain.Trade{trade(domain.SideBuy, 100, 1)}
	res := resultWithTrades(1000, trades, []float64{1000, 1001})

	var buf bytes.Buffer
	if err := WriteJSON(&buf, res); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded struct {
		Summary struct {
			InitialCapital float64 `json:"initial_capital"`
			Trades         int     `json:"trades"`
		} `json:"summary"`
		Trades []struct {
			Side      string `json:"side"`
			Timestamp string `json:"timestamp"`
		} `json:"trades"`
		EquityCurve []struct {
			Equity    float64 `json:"equity"`
			Timestamp string  `json:"timestamp"`
		} `json:"equity_curve"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if decoded.Summary.InitialCapital != 1000 || decoded.Summary.Trades != 1 {
		t.Errorf("summary = %+v", decoded.Summary)
	}
	if len(decoded.Trades) != 1 || decoded.Trades[0].Side != "buy" {
		t.Errorf("trades = %+v", decoded.Trades)
	}
	if decoded.Trades[0].Timestamp != "2025-01-02T00:00:00Z" {
		t.Errorf("trade timestamp = %q", decoded.Trades[0].Timestamp)
	}
	if len(decoded.EquityCurve) != 2 || decoded.EquityCurve[1].Equity != 1001 {
		t.Errorf("equity curve = %+v", decoded.EquityCurve)
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	res := resultWithTrades(1000, nil, []float64{1000, 1100})
	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, res); err != nil {
		t.Fatalf("WriteSummaryCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want header + one row: %q", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "initial_capital,final_equity,total_return") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "1000,") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestWriteTradesCSV(t *testing.T) {
	trades := []domain.Trade{
		trade(domain.SideBuy, 100.5, 2),
		trade(domain.SideSell, 101, 2),
	}
	res := resultWithTrades(1000, trades, []float64{1000})
	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, res); err != nil {
		t.Fatalf("WriteTradesCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows", len(lines))
	}
	if !strings.Contains(lines[1], "buy") || !strings.Contains(lines[2], "sell") {
		t.Errorf("rows = %v", lines[1:])
	}
}

func TestPrintSummary(t *testing.T) {
	res := resultWithTrades(1000, nil, []float64{1000, 1050})
	var buf bytes.Buffer
	PrintSummary(&buf, res)
	out := buf.String()
	for _, want := range []string{"initial capital", "final equity", "max drawdown", "win rate"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
