// Package engine contains the execution simulator, the portfolio ledger, and
// the backtest orchestrator that drives bars through a strategy.
package engine

import (
	"fmt"
	"math"

	"fastquant/internal/domain"
)

// ExecConfig holds the fill-simulation parameters for one run.
type ExecConfig struct {
	InitialCapital     float64
	DefaultSlippageBps float64
	CommissionPerUnit  float64
	CommissionBps      float64
}

// DefaultExecConfig returns the documented defaults: 100000 starting capital,
// no slippage, no commissions.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{InitialCapital: 100000}
}

// Simulator converts pending orders into trades against incoming bars. It
// enforces price feasibility, slippage, fees, and time-in-force semantics.
// A Simulator is owned by exactly one run and is not safe for concurrent use.
type Simulator struct {
	cfg     ExecConfig
	pending []domain.Order

	filled        int
	rejected      int
	totalFees     float64
	totalSlippage float64
	idCounter     int
	tradeCounter  int
}

// NewSimulator creates a Simulator with the given execution parameters.
func NewSimulator(cfg ExecConfig) *Simulator {
	return &Simulator{cfg: cfg}
}

// Submit accepts an order into the pending set. Orders with a non-positive
// quantity are silently dropped. Submit implements strategy.OrderSink.
func (s *Simulator) Submit(order domain.Order) {
	if order.Qty <= 0 {
		return
	}
	order.Symbol = domain.NormalizeSymbol(order.Symbol)
	if order.Type == "" {
		order.Type = domain.OrderTypeMarket
	}
	if order.TIF == "" {
		order.TIF = domain.TIFGoodTilCancel
	}
	if order.ID == "" {
		s.idCounter++
		order.ID = fmt.Sprintf("order-%d", s.idCounter)
	}
	s.pending = append(s.pending, order)
}

// Evaluate matches all pending orders on the bar's symbol against the bar,
// oldest submission first, and returns the resulting trades. Orders that
// fail to fill persist if GTC and are rejected if IOC or FOK. Orders on
// other symbols are left untouched.
func (s *Simulator) Evaluate(bar domain.Bar) []domain.Trade {
	if len(s.pending) == 0 {
		return nil
	}
	barSymbol := domain.NormalizeSymbol(bar.Symbol)

	var trades []domain.Trade
	remaining := s.pending[:0]
	for _, order := range s.pending {
		if order.Symbol != barSymbol {
			remaining = append(remaining, order)
			continue
		}

		rawPrice, ok := s.fillPrice(order, bar)
		if !ok {
			if order.TIF == domain.TIFGoodTilCancel {
				remaining = append(remaining, order)
			} else {
				s.rejected++
			}
			continue
		}

		trades = append(trades, s.fill(order, rawPrice, bar))
	}
	s.pending = remaining
	return trades
}

// fillPrice decides whether the order can fill against the bar and at what
// raw (pre-slippage) price.
func (s *Simulator) fillPrice(order domain.Order, bar domain.Bar) (float64, bool) {
	if order.Type == domain.OrderTypeMarket {
		// First positive of open, close, high. A bar with no positive
		// reference price cannot fill anything.
		switch {
		case bar.Open > 0:
			return bar.Open, true
		case bar.Close > 0:
			return bar.Close, true
		case bar.High > 0:
			return bar.High, true
		default:
			return 0, false
		}
	}

	// Degenerate bars may omit high/low; clamp feasibility to the open/close
	// range so such a bar never fills a limit order outside itself.
	high := bar.High
	if high <= 0 {
		high = math.Max(bar.Open, bar.Close)
	}
	low := bar.Low
	if low <= 0 {
		low = math.Min(bar.Open, bar.Close)
	}

	if order.Side == domain.SideBuy {
		if bar.Open <= order.Price {
			return bar.Open, true
		}
		if low <= order.Price {
			return order.Price, true
		}
		return 0, false
	}

	if bar.Open >= order.Price {
		return bar.Open, true
	}
	if high >= order.Price {
		return order.Price, true
	}
	return 0, false
}

// fill produces the trade for a feasible order, applying slippage and fees.
func (s *Simulator) fill(order domain.Order, rawPrice float64, bar domain.Bar) domain.Trade {
	bps := s.cfg.DefaultSlippageBps
	if order.SlippageBps != 0 {
		bps = order.SlippageBps
	}

	price := rawPrice
	if order.Side == domain.SideBuy {
		price = rawPrice * (1 + bps/10000)
	} else {
		price = rawPrice * (1 - bps/10000)
	}
	slippage := math.Abs(price-rawPrice) * order.Qty

	fee := s.cfg.CommissionPerUnit*order.Qty + s.cfg.CommissionBps/10000*(price*order.Qty)

	s.filled++
	s.totalFees += fee
	s.totalSlippage += slippage
	s.tradeCounter++

	return domain.Trade{
		ID:        fmt.Sprintf("%s-exec-%d", order.ID, s.tradeCounter),
		OrderID:   order.ID,
		Side:      order.Side,
		Type:      order.Type,
		Price:     price,
		Qty:       order.Qty,
		Symbol:    order.Symbol,
		Timestamp: bar.Timestamp,
		Fee:       fee,
		Slippage:  slippage,
	}
}

// rejectSubmission counts an order turned away before entering the pending
// set (pre-trade risk check failure).
func (s *Simulator) rejectSubmission() {
	s.rejected++
}

// ExpireAll rejects every order still pending. Called when the bar stream is
// exhausted.
func (s *Simulator) ExpireAll() {
	s.rejected += len(s.pending)
	s.pending = s.pending[:0]
}

// Pending returns the number of orders awaiting evaluation.
func (s *Simulator) Pending() int { return len(s.pending) }

// Filled returns the number of orders filled so far.
func (s *Simulator) Filled() int { return s.filled }

// Rejected returns the number of orders rejected or expired so far.
func (s *Simulator) Rejected() int { return s.rejected }

// TotalFees returns the cumulative fees charged on fills.
func (s *Simulator) TotalFees() float64 { return s.totalFees }

// TotalSlippage returns the cumulative slippage cost across fills.
func (s *Simulator) TotalSlippage() float64 { return s.totalSlippage }
