package inventory

import "github.com/shopspring/decimal"

// Recompute refreshes the derived stock fields of item. It must run before
// every persist of stock quantities.
func Recompute(item *Item) {
	available := item.CurrentStock.Sub(item.ReservedStock)
	if available.IsNegative() {
		available = decimal.Zero
	}
	item.AvailableStock = available
	item.TotalValue = item.CurrentStock.Mul(item.AverageCost).Round(2)
}

// signedDelta converts a movement quantity into the change of current stock.
// Adjustments keep their sign; the other types use the magnitude.
func signedDelta(t MovementType, qty decimal.Decimal) decimal.Decimal {
	switch t {
	case MovementAdjustment:
		return qty
	case MovementOutward, MovementProductionConsume, MovementDamage:
		return qty.Abs().Neg()
	default:
		return qty.Abs()
	}
}

// movingAverage returns the average cost after receiving qty units at rate.
func movingAverage(onHand, avg, qty, rate decimal.Decimal) decimal.Decimal {
	newQty := onHand.Add(qty)
	if !newQty.IsPositive() {
		return decimal.Zero
	}
	if onHand.IsNegative() {
		return rate
	}
	total := onHand.Mul(avg).Add(qty.Mul(rate))
	return total.DivRound(newQty, 4)
}
