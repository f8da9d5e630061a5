package invoicing

import (
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the GST rate applied when neither configuration nor the
// company settings provide one.
var DefaultTaxRate = decimal.RequireFromString("0.18")

var hundred = decimal.NewFromInt(100)

// priceScale is the number of decimals a stored unit price keeps.
const priceScale = 2

// lineAmount is the only place a line amount is derived.
func lineAmount(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(quantity)).Mul(unitPrice)
}

// ComputeTotals sums line amounts and applies taxRate. Values are exact; no
// rounding happens here.
func ComputeTotals(lines []LineItem, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(lineAmount(l.Quantity, l.UnitPrice))
	}
	tax := subtotal.Mul(taxRate)
	return Totals{
		Subtotal:   subtotal,
		Tax:        tax,
		GrandTotal: subtotal.Add(tax),
	}
}

// RateFromPercent converts a percentage such as 18 into a fraction (0.18).
func RateFromPercent(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred)
}

// FormatMoney renders d with two decimals after prefix, e.g. "₹295.00".
func FormatMoney(prefix string, d decimal.Decimal) string {
	return prefix + d.StringFixed(2)
}
