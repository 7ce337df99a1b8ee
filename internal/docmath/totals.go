// Package docmath computes monetary totals and derived statuses for
// business documents. All arithmetic uses decimals rounded to two places
// at each boundary so recomputing totals from persisted lines reproduces
// the stored values exactly.
package docmath

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineTotal computes quantity x unitPrice - discount, clamped at zero.
func LineTotal(quantity, unitPrice, discount decimal.Decimal) decimal.Decimal {
	total := quantity.Mul(unitPrice).Sub(discount).Round(2)
	if total.IsNegative() {
		return decimal.Zero.Round(2)
	}
	return total
}

// Adjustments holds document-level modifiers applied on top of the line
// subtotal.
type Adjustments struct {
	Discount     decimal.Decimal // flat amount off the subtotal
	TradeIn      decimal.Decimal // value of old gold taken in exchange
	TaxRate      decimal.Decimal // percentage applied after discount
	DeliveryCost decimal.Decimal
}

// Totals carries every intermediate of the document formula.
type Totals struct {
	Subtotal      decimal.Decimal
	AfterDiscount decimal.Decimal
	TaxAmount     decimal.Decimal
	Total         decimal.Decimal
}

// Compute applies the fixed adjustment order: subtotal, minus discount,
// minus trade-in, plus tax on the discounted amount, plus delivery cost.
func Compute(lineTotals []decimal.Decimal, adj Adjustments) Totals {
	subtotal := decimal.Zero
	for _, lt := range lineTotals {
		subtotal = subtotal.Add(lt)
	}
	subtotal = subtotal.Round(2)

	afterDiscount := subtotal.Sub(adj.Discount).Round(2)
	taxAmount := afterDiscount.Mul(adj.TaxRate).Div(hundred).Round(2)
	total := afterDiscount.Sub(adj.TradeIn).Add(taxAmount).Add(adj.DeliveryCost).Round(2)

	return Totals{
		Subtotal:      subtotal,
		AfterDiscount: afterDiscount,
		TaxAmount:     taxAmount,
		Total:         total,
	}
}

// BalanceDue returns total minus paid.
func BalanceDue(total, paid decimal.Decimal) decimal.Decimal {
	return total.Sub(paid).Round(2)
}
