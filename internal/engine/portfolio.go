package engine

import (
	"math"

	"fastquant/internal/domain"
)

// epsilon below which a position quantity is considered flat.
const epsilon = 1e-9

// Portfolio maintains per-symbol positions and cash from an append-only
// trade sequence and answers equity/P&L queries at any point. It is owned by
// exactly one run and is not safe for concurrent use.
type Portfolio struct {
	cash        float64
	realizedPnl float64
	positions   map[string]*domain.Position
	marks       map[string]float64
}

// NewPortfolio creates a Portfolio holding the given starting cash.
func NewPortfolio(initialCash float64) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		positions: make(map[string]*domain.Position),
		marks:     make(map[string]float64),
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// RealizedPnl returns the cumulative realized profit and loss.
func (p *Portfolio) RealizedPnl() float64 { return p.realizedPnl }

// ApplyTrade applies a fill to cash and the symbol's position. Cash always
// decreases by signed_qty*price plus the fee (the fee is a cost on both
// sides). Average-price accounting follows volume weighting when adding and
// realizes the overlapping quantity when reducing or flipping.
func (p *Portfolio) ApplyTrade(trade domain.Trade) {
	sym := domain.NormalizeSymbol(trade.Symbol)

	signedQty := trade.SignedQty()
	if math.Abs(signedQty) < epsilon {
		return
	}

	pos, ok := p.positions[sym]
	if !ok {
		pos = &domain.Position{Symbol: sym}
		p.positions[sym] = pos
	}

	p.cash -= signedQty * trade.Price
	p.cash -= trade.Fee
	p.marks[sym] = trade.Price

	prevQty := pos.Qty
	if math.Abs(prevQty) < epsilon {
		pos.Qty = signedQty
		pos.AvgPrice = trade.Price
		return
	}

	sameDirection := (prevQty > 0) == (signedQty > 0)
	if sameDirection {
		totalAbs := math.Abs(prevQty) + math.Abs(signedQty)
		pos.AvgPrice = (pos.AvgPrice*math.Abs(prevQty) + trade.Price*math.Abs(signedQty)) / totalAbs
		pos.Qty = prevQty + signedQty
		return
	}

	closingQty := math.Min(math.Abs(prevQty), math.Abs(signedQty))
	if prevQty > 0 {
		p.realizedPnl += (trade.Price - pos.AvgPrice) * closingQty
	} else {
		p.realizedPnl += (pos.AvgPrice - trade.Price) * closingQty
	}

	newQty := prevQty + signedQty
	switch {
	case math.Abs(newQty) < epsilon:
		pos.Qty = 0
		pos.AvgPrice = 0
	case (prevQty > 0) == (newQty > 0):
		// Partial close keeps the original average price.
		pos.Qty = newQty
	default:
		// Position flipped direction; the residual enters at the trade price.
		pos.Qty = newQty
		pos.AvgPrice = trade.Price
	}
}

// MarkPrice records the last observed price for a symbol. Non-positive
// prices are ignored.
func (p *Portfolio) MarkPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	p.marks[domain.NormalizeSymbol(symbol)] = price
}

// LastPrice returns the last mark for a symbol, falling back to the
// position's average price when the symbol was never marked, and zero when
// the symbol is unknown.
func (p *Portfolio) LastPrice(symbol string) float64 {
	sym := domain.NormalizeSymbol(symbol)
	if mark, ok := p.marks[sym]; ok {
		return mark
	}
	if pos, ok := p.positions[sym]; ok {
		return pos.AvgPrice
	}
	return 0
}

// PositionValue returns the mark-to-market value of all open positions.
func (p *Portfolio) PositionValue() float64 {
	value := 0.0
	for sym, pos := range p.positions {
		if math.Abs(pos.Qty) < epsilon {
			continue
		}
		value += pos.MarketValue(p.LastPrice(sym))
	}
	return value
}

// UnrealizedPnl returns the open P&L of all positions at their last marks.
func (p *Portfolio) UnrealizedPnl() float64 {
	u := 0.0
	for sym, pos := range p.positions {
		if math.Abs(pos.Qty) < epsilon {
			continue
		}
		u += pos.Unrealized(p.LastPrice(sym))
	}
	return u
}

// Equity returns cash plus the mark-to-market value of all positions.
func (p *Portfolio) Equity() float64 {
	return p.cash + p.PositionValue()
}

// Position returns a copy of the position for a symbol. The zero Position is
// returned for unknown symbols.
func (p *Portfolio) Position(symbol string) domain.Position {
	if pos, ok := p.positions[domain.NormalizeSymbol(symbol)]; ok {
		return *pos
	}
	return domain.Position{Symbol: domain.NormalizeSymbol(symbol)}
}

// Positions returns a snapshot of all non-flat positions.
func (p *Portfolio) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if math.Abs(pos.Qty) < epsilon {
			continue
		}
		out = append(out, *pos)
	}
	return out
}
