package production

import "github.com/shopspring/decimal"

// Recompute refreshes pending quantity, material totals and the cost summary.
// It must run before every persist of an order.
func Recompute(o *Order) {
	o.PendingQuantity = o.OrderQuantity.Sub(o.CompletedQuantity).Sub(o.RejectedQuantity)

	material := decimal.Zero
	for i := range o.RawMaterials {
		m := &o.RawMaterials[i]
		basis := m.RequiredQuantity
		if m.ConsumedQuantity.IsPositive() {
			basis = m.ConsumedQuantity
		}
		m.TotalCost = basis.Mul(m.Rate).Round(2)
		material = material.Add(m.TotalCost)
	}
	labour, overhead := decimal.Zero, decimal.Zero
	for _, s := range o.Stages {
		labour = labour.Add(s.LabourCost)
		overhead = overhead.Add(s.OverheadCost)
	}
	total := material.Add(labour).Add(overhead)
	o.Cost = CostSummary{
		MaterialCost: material.Round(2),
		LabourCost:   labour.Round(2),
		OverheadCost: overhead.Round(2),
		TotalCost:    total.Round(2),
	}
	units := o.CompletedQuantity
	if !units.IsPositive() {
		units = o.OrderQuantity
	}
	if units.IsPositive() {
		o.Cost.CostPerUnit = total.DivRound(units, 2)
	}
}

// currentStage returns the index of the first stage that is not completed, or -1.
func currentStage(stages []Stage) int {
	for i, s := range stages {
		if s.Status != StageCompleted {
			return i
		}
	}
	return -1
}
