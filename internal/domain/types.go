// Package domain defines the shared data types for the fastquant platform:
// OHLCV bars, orders, trades, and positions.
package domain

import "time"

// DefaultSymbol is the sentinel instrument used when a bar or order carries
// no symbol of its own.
const DefaultSymbol = "DEFAULT"

// NormalizeSymbol maps an empty symbol to DefaultSymbol.
func NormalizeSymbol(symbol string) string {
	if symbol == "" {
		return DefaultSymbol
	}
	return symbol
}

// Side is the direction of an order or trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType selects the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce governs how long an unfilled order remains eligible.
type TimeInForce string

const (
	// TIFGoodTilCancel keeps an unfilled order pending for future bars.
	TIFGoodTilCancel TimeInForce = "gtc"
	// TIFImmediateOrCancel drops the order after one evaluation.
	TIFImmediateOrCancel TimeInForce = "ioc"
	// TIFFillOrKill drops the order after one evaluation. Partial fills are
	// not modeled, so FOK and IOC behave identically here.
	TIFFillOrKill TimeInForce = "fok"
)

// Bar is a single OHLCV candle. Bars are immutable once produced by a feed.
type Bar struct {
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Order is a strategy-submitted instruction to trade. Price is the limit
// reference and is ignored for market orders. SlippageBps, when nonzero,
// overrides the engine-wide default for this order only.
type Order struct {
	ID          string      `json:"id"`
	Side        Side        `json:"side"`
	Type        OrderType   `json:"type"`
	TIF         TimeInForce `json:"tif"`
	Price       float64     `json:"price"`
	Qty         float64     `json:"qty"`
	Symbol      string      `json:"symbol"`
	Timestamp   time.Time   `json:"timestamp"`
	SlippageBps float64     `json:"slippage_bps,omitempty"`
}

// Trade is the immutable record of a fill. Slippage is the absolute price
// adjustment cost, |adjusted-raw| * qty.
type Trade struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Side      Side      `json:"side"`
	Type      OrderType `json:"type"`
	Price     float64   `json:"price"`
	Qty       float64   `json:"qty"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Fee       float64   `json:"fee"`
	Slippage  float64   `json:"slippage"`
}

// SignedQty returns the trade quantity signed by side: positive for buys,
// negative for sells.
func (t Trade) SignedQty() float64 {
	if t.Side == SideSell {
		return -t.Qty
	}
	return t.Qty
}

// Position is a signed holding in one instrument. Qty > 0 is long, < 0 is
// short. AvgPrice is the volume-weighted entry price.
type Position struct {
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
}

// MarketValue is the mark-to-market value of the position.
func (p Position) MarketValue(mark float64) float64 {
	return p.Qty * mark
}

// Unrealized is the open P&L of the position at the given mark.
func (p Position) Unrealized(mark float64) float64 {
	return p.Qty * (mark - p.AvgPrice)
}
