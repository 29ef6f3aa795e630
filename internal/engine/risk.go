package engine

import (
	"fmt"

	"fastquant/internal/domain"
)

// RiskManager enforces optional pre-trade rules on strategy submissions.
// Orders failing a check never reach the pending set and are counted as
// rejected.
type RiskManager struct {
	// MaxPositionPct caps a single order's notional value as a fraction of
	// current equity (e.g. 0.25 for 25%). Zero disables the check.
	MaxPositionPct float64

	// MaxOrderQty caps the quantity of a single order. Zero disables the
	// check.
	MaxOrderQty float64
}

// CheckOrder evaluates whether the proposed order complies with the
// configured limits given the current portfolio state.
func (rm *RiskManager) CheckOrder(order domain.Order, pf *Portfolio) error {
	if rm.MaxOrderQty > 0 && order.Qty > rm.MaxOrderQty {
		return fmt.Errorf("order qty %v exceeds limit %v", order.Qty, rm.MaxOrderQty)
	}

	if rm.MaxPositionPct > 0 {
		price := order.Price
		if price <= 0 {
			price = pf.LastPrice(order.Symbol)
		}
		notional := price * order.Qty
		if equity := pf.Equity(); equity > 0 && notional > rm.MaxPositionPct*equity {
			return fmt.Errorf("order notional %.2f exceeds %.0f%% of equity",
				notional, rm.MaxPositionPct*100)
		}
	}
	return nil
}
