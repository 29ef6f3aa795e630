// Package builtins provides the built-in strategy implementations that ship
// with the fastquant platform.
package builtins

import (
	"context"
	"fmt"

	"fastquant/internal/domain"
	"fastquant/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It submits
// a market buy when the short-period SMA crosses above the long-period SMA,
// and a market sell when it crosses back below.
type SMACross struct {
	name        string
	shortWindow int
	longWindow  int
	orderQty    float64

	shortBuf []float64
	longBuf  []float64
	shortSum float64
	longSum  float64

	// whether short SMA was above long SMA on the previous bar, used to
	// detect crossings
	lastShortAbove bool
	lastSymbol     string
	orderCounter   int
}

// NewSMACross creates an SMACross strategy with the specified short and long
// moving average windows. Zero windows are clamped to 1 and the windows are
// swapped if short exceeds long.
func NewSMACross(name string, short, long int, orderQty float64) *SMACross {
	if short <= 0 {
		short = 1
	}
	if long <= 0 {
		long = 1
	}
	if short > long {
		short, long = long, short
	}
	if orderQty <= 0 {
		orderQty = 1
	}
	if name == "" {
		name = "sma-cross"
	}
	return &SMACross{
		name:        name,
		shortWindow: short,
		longWindow:  long,
		orderQty:    orderQty,
	}
}

// Name returns the configured instance name.
func (s *SMACross) Name() string { return s.name }

// OnStart resets all rolling state.
func (s *SMACross) OnStart(_ context.Context) error {
	s.shortBuf = s.shortBuf[:0]
	s.longBuf = s.longBuf[:0]
	s.shortSum = 0
	s.longSum = 0
	s.lastShortAbove = false
	s.lastSymbol = ""
	s.orderCounter = 0
	return nil
}

// OnBar updates the rolling sums and submits a market order on a crossover.
func (s *SMACross) OnBar(_ context.Context, bar domain.Bar, orders strategy.OrderSink) error {
	price := bar.Close
	if bar.Symbol != "" {
		s.lastSymbol = bar.Symbol
	} else if s.lastSymbol == "" {
		s.lastSymbol = domain.DefaultSymbol
	}

	s.shortBuf = append(s.shortBuf, price)
	s.shortSum += price
	if len(s.shortBuf) > s.shortWindow {
		s.shortSum -= s.shortBuf[0]
		s.shortBuf = s.shortBuf[1:]
	}

	s.longBuf = append(s.longBuf, price)
	s.longSum += price
	if len(s.longBuf) > s.longWindow {
		s.longSum -= s.longBuf[0]
		s.longBuf = s.longBuf[1:]
	}

	if len(s.shortBuf) < s.shortWindow || len(s.longBuf) < s.longWindow {
		return nil
	}

	shortMA := s.shortSum / float64(s.shortWindow)
	longMA := s.longSum / float64(s.longWindow)
	nowShortAbove := shortMA > longMA

	if !s.lastShortAbove && nowShortAbove {
		s.submit(domain.SideBuy, price, bar, orders)
	} else if s.lastShortAbove && !nowShortAbove {
		s.submit(domain.SideSell, price, bar, orders)
	}
	s.lastShortAbove = nowShortAbove
	return nil
}

// OnFinish is a no-op; open positions are left for the portfolio to mark.
func (s *SMACross) OnFinish(_ context.Context) error { return nil }

func (s *SMACross) submit(side domain.Side, price float64, bar domain.Bar, orders strategy.OrderSink) {
	s.orderCounter++
	orders.Submit(domain.Order{
		ID:        fmt.Sprintf("%s-%s-%d", s.name, side, s.orderCounter),
		Side:      side,
		Type:      domain.OrderTypeMarket,
		TIF:       domain.TIFGoodTilCancel,
		Price:     price,
		Qty:       s.orderQty,
		Symbol:    s.lastSymbol,
		Timestamp: bar.Timestamp,
	})
}
