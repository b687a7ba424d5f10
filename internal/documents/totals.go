package documents

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

var hundred = decimal.NewFromInt(100)

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// priceLine computes taxable, tax and line totals. Every intermediate is
// rounded to 2 places before it is used further.
func priceLine(idx int, line *Line) error {
	if line.Rate.IsNegative() {
		return shared.Validation("lines[%d].rate: must not be negative", idx)
	}
	if line.Discount.IsNegative() {
		return shared.Validation("lines[%d].discount: must not be negative", idx)
	}
	if line.TaxPercent.IsNegative() || line.TaxPercent.GreaterThan(hundred) {
		return shared.Validation("lines[%d].taxPercent: must be between 0 and 100", idx)
	}
	gross := round2(decimal.NewFromInt(line.Quantity).Mul(line.Rate))
	discount := round2(line.Discount)
	if discount.GreaterThan(gross) {
		return shared.Validation("lines[%d].discount: exceeds line amount %s", idx, gross.StringFixed(2))
	}
	line.Discount = discount
	line.TaxableAmount = round2(gross.Sub(discount))
	line.TaxAmount = round2(line.TaxableAmount.Mul(line.TaxPercent).Div(hundred))
	line.LineTotal = round2(line.TaxableAmount.Add(line.TaxAmount))
	return nil
}

// priceDocument prices every line and sums the header totals.
func priceDocument(doc *Document) error {
	sub, disc, taxable, tax := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for i := range doc.Lines {
		line := &doc.Lines[i]
		if err := priceLine(i, line); err != nil {
			return err
		}
		sub = sub.Add(round2(decimal.NewFromInt(line.Quantity).Mul(line.Rate)))
		disc = disc.Add(line.Discount)
		taxable = taxable.Add(line.TaxableAmount)
		tax = tax.Add(line.TaxAmount)
	}
	doc.SubTotal = round2(sub)
	doc.DiscountTotal = round2(disc)
	doc.TaxableTotal = round2(taxable)
	doc.TaxTotal = round2(tax)
	doc.GrandTotal = round2(taxable.Add(tax))
	return nil
}

// recomputeDue restores dueAmount = max(0, grandTotal - paidAmount).
func recomputeDue(doc *Document) {
	due := round2(doc.GrandTotal.Sub(doc.PaidAmount))
	if due.IsNegative() {
		due = decimal.Zero
	}
	doc.DueAmount = due
}
