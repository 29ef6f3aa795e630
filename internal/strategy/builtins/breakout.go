package builtins

import (
	"context"
	"fmt"

	"fastquant/internal/domain"
	"fastquant/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Breakout)(nil)

type breakoutState int

const (
	breakoutFlat breakoutState = iota
	breakoutLong
	breakoutShort
)

// Breakout implements a channel breakout strategy. It buys when the close
// exceeds the highest high of the lookback window plus a buffer, and exits
// (or shorts, when allowed) when the close falls below the lowest low minus
// the buffer.
type Breakout struct {
	name       string
	lookback   int
	buffer     float64
	orderQty   float64
	allowShort bool

	highs []float64
	lows  []float64

	state        breakoutState
	lastSymbol   string
	orderCounter int
}

// NewBreakout creates a Breakout strategy. A zero lookback is clamped to 1
// and a non-positive order quantity defaults to 1.
func NewBreakout(name string, lookback int, buffer, orderQty float64, allowShort bool) *Breakout {
	if lookback <= 0 {
		lookback = 1
	}
	if orderQty <= 0 {
		orderQty = 1
	}
	if name == "" {
		name = "breakout"
	}
	return &Breakout{
		name:       name,
		lookback:   lookback,
		buffer:     buffer,
		orderQty:   orderQty,
		allowShort: allowShort,
	}
}

// Name returns the configured instance name.
func (b *Breakout) Name() string { return b.name }

// OnStart resets the lookback window and position state.
func (b *Breakout) OnStart(_ context.Context) error {
	b.highs = b.highs[:0]
	b.lows = b.lows[:0]
	b.state = breakoutFlat
	b.lastSymbol = ""
	b.orderCounter = 0
	return nil
}

// OnBar compares the close against the prior lookback channel and submits
// market orders on breakouts. The current bar only enters the channel after
// the comparison so a bar never breaks out of itself.
func (b *Breakout) OnBar(_ context.Context, bar domain.Bar, orders strategy.OrderSink) error {
	if bar.Symbol != "" {
		b.lastSymbol = bar.Symbol
	} else if b.lastSymbol == "" {
		b.lastSymbol = domain.DefaultSymbol
	}

	if len(b.highs) < b.lookback {
		b.highs = append(b.highs, bar.High)
		b.lows = append(b.lows, bar.Low)
		return nil
	}

	highest := b.highs[0]
	lowest := b.lows[0]
	for i := 1; i < len(b.highs); i++ {
		if b.highs[i] > highest {
			highest = b.highs[i]
		}
		if b.lows[i] < lowest {
			lowest = b.lows[i]
		}
	}
	price := bar.Close

	switch {
	case b.state == breakoutLong && price < lowest-b.buffer:
		b.submit(domain.SideSell, price, bar, orders)
		b.state = breakoutFlat
	case b.state == breakoutShort && price > highest+b.buffer:
		b.submit(domain.SideBuy, price, bar, orders)
		b.state = breakoutFlat
	case b.state == breakoutFlat && price > highest+b.buffer:
		b.submit(domain.SideBuy, price, bar, orders)
		b.state = breakoutLong
	case b.state == breakoutFlat && b.allowShort && price < lowest-b.buffer:
		b.submit(domain.SideSell, price, bar, orders)
		b.state = breakoutShort
	}

	b.highs = append(b.highs, bar.High)
	b.lows = append(b.lows, bar.Low)
	if len(b.highs) > b.lookback {
		b.highs = b.highs[1:]
	}
	if len(b.lows) > b.lookback {
		b.lows = b.lows[1:]
	}
	return nil
}

// OnFinish is a no-op.
func (b *Breakout) OnFinish(_ context.Context) error { return nil }

func (b *Breakout) submit(side domain.Side, price float64, bar domain.Bar, orders strategy.OrderSink) {
	b.orderCounter++
	orders.Submit(domain.Order{
		ID:        fmt.Sprintf("%s-%d", b.name, b.orderCounter),
		Side:      side,
		Type:      domain.OrderTypeMarket,
		TIF:       domain.TIFGoodTilCancel,
		Price:     price,
		Qty:       b.orderQty,
		Symbol:    b.lastSymbol,
		Timestamp: bar.Timestamp,
	})
}
