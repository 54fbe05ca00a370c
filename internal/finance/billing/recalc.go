package billing

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-hms/meridian/internal/money"
)

// Totals is the derived money of an invoice.
type Totals struct {
	Subtotal decimal.Decimal
	Total    decimal.Decimal
	// Skipped holds indexes of line items whose amount did not parse.
	Skipped []int
}

// Recalc sums line amounts and applies the discount. Malformed line amounts
// are skipped; the total never drops below zero.
func Recalc(services []LineItem, discount decimal.Decimal) Totals {
	subtotal := money.Zero
	var skipped []int
	for i, item := range services {
		amount, err := money.Parse(string(item.Amount))
		if err != nil {
			skipped = append(skipped, i)
			continue
		}
		subtotal = subtotal.Add(amount)
	}
	subtotal = subtotal.Round(money.Scale)
	return Totals{
		Subtotal: subtotal,
		Total:    money.ClampZero(subtotal.Sub(discount)).Round(money.Scale),
		Skipped:  skipped,
	}
}

// Apply recomputes inv from its services and discount.
func (inv *Invoice) Apply(t Totals) {
	inv.Subtotal = t.Subtotal
	inv.Total = t.Total
}
