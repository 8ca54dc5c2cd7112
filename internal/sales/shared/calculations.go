// Package shared holds the line and header arithmetic common to commercial
// documents.
package shared

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/factory-erp/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// Line is one priced line of a quotation, order, invoice or purchase order.
type Line struct {
	ItemID          int64           `json:"itemId,omitempty" validate:"omitempty,gt=0"`
	Description     string          `json:"description" validate:"required,max=255"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit" validate:"max=20"`
	Rate            decimal.Decimal `json:"rate"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	TaxPercent      decimal.Decimal `json:"taxPercent"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	LineTotal       decimal.Decimal `json:"lineTotal"`
}

// Totals is the derived header of a document.
type Totals struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountTotal   decimal.Decimal `json:"discountTotal"`
	TaxTotal        decimal.Decimal `json:"taxTotal"`
	ShippingCharges decimal.Decimal `json:"shippingCharges"`
	GrandTotal      decimal.Decimal `json:"grandTotal"`
}

// CalculateLineTotals returns gross, discount, tax and total for one line.
func CalculateLineTotals(quantity, rate, discountPercent, taxPercent decimal.Decimal) (gross, discount, tax, total decimal.Decimal) {
	gross = quantity.Mul(rate).Round(2)
	discount = gross.Mul(discountPercent).Div(hundred).Round(2)
	taxable := gross.Sub(discount)
	tax = taxable.Mul(taxPercent).Div(hundred).Round(2)
	total = taxable.Add(tax)
	return gross, discount, tax, total
}

// ComputeTotals fills the derived amounts of every line and returns the header.
func ComputeTotals(lines []Line, shipping decimal.Decimal) Totals {
	t := Totals{ShippingCharges: shipping.Round(2)}
	sum := decimal.Zero
	for i := range lines {
		l := &lines[i]
		gross, discount, tax, total := CalculateLineTotals(l.Quantity, l.Rate, l.DiscountPercent, l.TaxPercent)
		l.DiscountAmount = discount
		l.TaxAmount = tax
		l.LineTotal = total
		t.Subtotal = t.Subtotal.Add(gross)
		t.DiscountTotal = t.DiscountTotal.Add(discount)
		t.TaxTotal = t.TaxTotal.Add(tax)
		sum = sum.Add(total)
	}
	t.GrandTotal = sum.Add(t.ShippingCharges).Round(2)
	return t
}

// ValidateLines checks quantities, rates and percentages.
func ValidateLines(lines []Line) error {
	if len(lines) == 0 {
		return shared.Validation("at least one line item required")
	}
	for i, l := range lines {
		switch {
		case !l.Quantity.IsPositive():
			return shared.Validation(fmt.Sprintf("line %d: quantity must be positive", i+1))
		case l.Rate.IsNegative():
			return shared.Validation(fmt.Sprintf("line %d: rate must be >= 0", i+1))
		case !inPercentRange(l.DiscountPercent):
			return shared.Validation(fmt.Sprintf("line %d: discount percent must be between 0 and 100", i+1))
		case !inPercentRange(l.TaxPercent):
			return shared.Validation(fmt.Sprintf("line %d: tax percent must be between 0 and 100", i+1))
		}
	}
	return nil
}

func inPercentRange(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// PaymentStatus is derived from the paid amount against the grand total.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentOverpaid PaymentStatus = "overpaid"
)

// DerivePaymentStatus classifies paid against total.
func DerivePaymentStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case !paid.IsPositive():
		return PaymentUnpaid
	case paid.LessThan(total):
		return PaymentPartial
	case paid.Equal(total):
		return PaymentPaid
	default:
		return PaymentOverpaid
	}
}
