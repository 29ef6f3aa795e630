// Package report computes summary statistics from backtest results and
// writes them as JSON and CSV artifacts.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"fastquant/internal/domain"
	"fastquant/internal/engine"
)

const epsilon = 1e-9

// Summary holds the headline statistics of one backtest run.
type Summary struct {
	StrategyName   string  `json:"strategy_name,omitempty"`
	InitialCapital float64 `json:"initial_capital"`
	FinalEquity    float64 `json:"final_equity"`
	TotalReturn    float64 `json:"total_return"`
	RealizedPnl    float64 `json:"realized_pnl"`
	UnrealizedPnl  float64 `json:"unrealized_pnl"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	PeakEquity     float64 `json:"peak_equity"`
	TroughEquity   float64 `json:"trough_equity"`
	Trades         int     `json:"trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	TotalFees      float64 `json:"total_fees"`
	TotalSlippage  float64 `json:"total_slippage"`
	OrdersFilled   int     `json:"orders_filled"`
	OrdersRejected int     `json:"orders_rejected"`
}

// Summarize computes the summary for a completed run. The drawdown is the
// largest peak-to-trough equity drop, expressed as a positive amount. Win
// and loss counts come from replaying the trade sequence through a fresh
// ledger and classifying each trade by the realized P&L it produced.
func Summarize(result *engine.Result) Summary {
	s := Summary{
		StrategyName:   result.StrategyName,
		InitialCapital: result.InitialCapital,
		Trades:         len(result.Trades),
		TotalFees:      result.TotalFees,
		TotalSlippage:  result.TotalSlippage,
		OrdersFilled:   result.OrdersFilled,
		OrdersRejected: result.OrdersRejected,
	}
	if result.Portfolio != nil {
		s.FinalEquity = result.Portfolio.Equity()
		s.RealizedPnl = result.Portfolio.RealizedPnl()
		s.UnrealizedPnl = result.Portfolio.UnrealizedPnl()
	}
	if s.InitialCapital > 0 {
		s.TotalReturn = s.FinalEquity/s.InitialCapital - 1
	}

	s.PeakEquity, s.TroughEquity, s.MaxDrawdown = drawdown(result.InitialCapital, result.EquityCurve)

	s.WinningTrades, s.LosingTrades = classifyTrades(result.InitialCapital, result.Trades)
	if decided := s.WinningTrades + s.LosingTrades; decided > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(decided)
	}
	return s
}

// drawdown scans the equity curve for the deepest peak-to-trough drop. The
// trough resets whenever a new peak is made.
func drawdown(initial float64, curve []float64) (peak, trough, maxDd float64) {
	peak = initial
	trough = initial
	if len(curve) == 0 {
		return peak, trough, 0
	}
	peak = curve[0]
	trough = peak
	for _, equity := range curve {
		if equity > peak {
			peak = equity
			trough = equity
		}
		if equity < trough {
			trough = equity
			if dd := peak - trough; dd > maxDd {
				maxDd = dd
			}
		}
	}
	return peak, trough, maxDd
}

// classifyTrades replays the trades through a fresh ledger and counts a win
// or loss for each trade whose realized P&L delta is nonzero. Opening trades
// realize nothing and are not counted either way.
func classifyTrades(initial float64, trades []domain.Trade) (wins, losses int) {
	replay := engine.NewPortfolio(initial)
	prev := 0.0
	for _, tr := range trades {
		replay.ApplyTrade(tr)
		delta := replay.RealizedPnl() - prev
		if delta > epsilon {
			wins++
		} else if delta < -epsilon {
			losses++
		}
		prev = replay.RealizedPnl()
	}
	return wins, losses
}

// equityPoint is one entry of the serialized equity curve.
type equityPoint struct {
	Equity    float64 `json:"equity"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type tradeRecord struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Qty       float64 `json:"qty"`
	Symbol    string  `json:"symbol"`
	Timestamp string  `json:"timestamp"`
	Fee       float64 `json:"fee"`
	Slippage  float64 `json:"slippage"`
}

type jsonReport struct {
	Summary     Summary       `json:"summary"`
	Trades      []tradeRecord `json:"trades"`
	EquityCurve []equityPoint `json:"equity_curve"`
}

func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05Z")
}

// WriteJSON writes the full report (summary, trades, equity curve) as
// indented JSON.
func WriteJSON(w io.Writer, result *engine.Result) error {
	rep := jsonReport{
		Summary: Summarize(result),
		Trades:  make([]tradeRecord, 0, len(result.Trades)),
	}
	for _, tr := range result.Trades {
		rep.Trades = append(rep.Trades, tradeRecord{
			ID:        tr.ID,
			OrderID:   tr.OrderID,
			Side:      string(tr.Side),
			Price:     tr.Price,
			Qty:       tr.Qty,
			Symbol:    tr.Symbol,
			Timestamp: formatTimestamp(tr.Timestamp),
			Fee:       tr.Fee,
			Slippage:  tr.Slippage,
		})
	}
	rep.EquityCurve = make([]equityPoint, 0, len(result.EquityCurve))
	for i, equity := range result.EquityCurve {
		point := equityPoint{Equity: equity}
		if i < len(result.EquityTimestamps) {
			point.Timestamp = formatTimestamp(result.EquityTimestamps[i])
		}
		rep.EquityCurve = append(rep.EquityCurve, point)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// WriteJSONFile writes the full report to a file, creating or truncating it.
func WriteJSONFile(path string, result *engine.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()
	if err := WriteJSON(f, result); err != nil {
		return err
	}
	return f.Close()
}

// WriteSummaryCSV writes the one-row summary CSV.
func WriteSummaryCSV(w io.Writer, result *engine.Result) error {
	s := Summarize(result)
	cw := csv.NewWriter(w)
	header := []string{
		"initial_capital", "final_equity", "total_return", "realized_pnl",
		"unrealized_pnl", "max_drawdown", "win_rate", "trades",
		"winning_trades", "losing_trades",
	}
	row := []string{
		formatFloat(s.InitialCapital),
		formatFloat(s.FinalEquity),
		formatFloat(s.TotalReturn),
		formatFloat(s.RealizedPnl),
		formatFloat(s.UnrealizedPnl),
		formatFloat(s.MaxDrawdown),
		formatFloat(s.WinRate),
		strconv.Itoa(s.Trades),
		strconv.Itoa(s.WinningTrades),
		strconv.Itoa(s.LosingTrades),
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryCSVFile writes the summary CSV to a file.
func WriteSummaryCSVFile(path string, result *engine.Result) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteSummaryCSV(w, result)
	})
}

// WriteTradesCSV writes one row per trade.
func WriteTradesCSV(w io.Writer, result *engine.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"trade_id", "order_id", "side", "price", "qty", "symbol", "timestamp"}); err != nil {
		return err
	}
	for _, tr := range result.Trades {
		row := []string{
			tr.ID,
			tr.OrderID,
			string(tr.Side),
			formatFloat(tr.Price),
			formatFloat(tr.Qty),
			tr.Symbol,
			formatTimestamp(tr.Timestamp),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSVFile writes the trades CSV to a file.
func WriteTradesCSVFile(path string, result *engine.Result) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteTradesCSV(w, result)
	})
}

// PrintSummary prints a human-readable summary to w.
func PrintSummary(w io.Writer, result *engine.Result) {
	s := Summarize(result)
	if s.StrategyName != "" {
		fmt.Fprintf(w, "strategy:         %s\n", s.StrategyName)
	}
	fmt.Fprintf(w, "initial capital:  %.2f\n", s.InitialCapital)
	fmt.Fprintf(w, "final equity:     %.2f\n", s.FinalEquity)
	fmt.Fprintf(w, "total return:     %.2f%%\n", s.TotalReturn*100)
	fmt.Fprintf(w, "realized pnl:     %.2f\n", s.RealizedPnl)
	fmt.Fprintf(w, "unrealized pnl:   %.2f\n", s.UnrealizedPnl)
	fmt.Fprintf(w, "max drawdown:     %.2f\n", s.MaxDrawdown)
	fmt.Fprintf(w, "trades:           %d (%d wins / %d losses, win rate %.1f%%)\n",
		s.Trades, s.WinningTrades, s.LosingTrades, s.WinRate*100)
	fmt.Fprintf(w, "orders:           %d filled, %d rejected\n", s.OrdersFilled, s.OrdersRejected)
	fmt.Fprintf(w, "fees:             %.2f\n", s.TotalFees)
	fmt.Fprintf(w, "slippage:         %.2f\n", s.TotalSlippage)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return err
	}
	return f.Close()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
