package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestCalculateLineTotals(t *testing.T) {
	gross, discount, tax, total := CalculateLineTotals(d("10"), d("150"), d("10"), d("18"))
	require.True(t, gross.Equal(d("1500")))
	require.True(t, discount.Equal(d("150")))
	require.True(t, tax.Equal(d("243")))
	require.True(t, total.Equal(d("1593")))
}

func TestComputeTotals(t *testing.T) {
	lines := []Line{
		{Description: "Bolt", Quantity: d("3"), Rate: d("33.335"), TaxPercent: d("5")},
		{Description: "Nut", Quantity: d("10"), Rate: d("2"), DiscountPercent: d("50")},
	}
	totals := ComputeTotals(lines, d("25"))

	// 3 x 33.335 = 100.005 rounds half-up to 100.01
	require.True(t, totals.Subtotal.Equal(d("120.01")), totals.Subtotal.String())
	require.True(t, totals.DiscountTotal.Equal(d("10")))
	require.True(t, totals.TaxTotal.Equal(d("5")))
	require.True(t, lines[0].LineTotal.Equal(d("105.01")))
	require.True(t, lines[1].LineTotal.Equal(d("10")))
	require.True(t, totals.GrandTotal.Equal(d("140.01")))
}

func TestValidateLines(t *testing.T) {
	require.Error(t, ValidateLines(nil))
	require.Error(t, ValidateLines([]Line{{Quantity: d("0"), Rate: d("1")}}))
	require.Error(t, ValidateLines([]Line{{Quantity: d("1"), Rate: d("-1")}}))
	require.Error(t, ValidateLines([]Line{{Quantity: d("1"), Rate: d("1"), DiscountPercent: d("101")}}))
	require.NoError(t, ValidateLines([]Line{{Quantity: d("1"), Rate: d("0"), TaxPercent: d("100")}}))
}

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		paid, total string
		want        PaymentStatus
	}{
		{"0", "100", PaymentUnpaid},
		{"40", "100", PaymentPartial},
		{"100", "100", PaymentPaid},
		{"100.01", "100", PaymentOverpaid},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, DerivePaymentStatus(d(tc.paid), d(tc.total)), tc.paid)
	}
}
