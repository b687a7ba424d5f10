package documents

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// invoiceStrategy sells goods on account: stock out, customer debited.
type invoiceStrategy struct{ noEffects }

func (invoiceStrategy) family() Family { return FamilySalesInvoice }
func (invoiceStrategy) lines() lineRule { return linesQuantity }

func (invoiceStrategy) prepare(ctx context.Context, env createEnv, doc *Document) error {
	if err := requireWarehouse(doc.WarehouseID, "warehouseId"); err != nil {
		return err
	}
	if err := requireCustomer(ctx, env, doc.CustomerID); err != nil {
		return err
	}
	if doc.PaymentMode == "" {
		doc.PaymentMode = PaymentCredit
	}
	if !doc.PaymentMode.valid() {
		return shared.Validation("paymentMode: unknown mode %q", doc.PaymentMode)
	}
	if err := priceDocument(doc); err != nil {
		return err
	}
	doc.PaidAmount = decimal.Zero
	recomputeDue(doc)
	return nil
}

func (invoiceStrategy) warehouses(doc Document) []int64 { return []int64{doc.WarehouseID} }

func (invoiceStrategy) stockKeys(doc Document) []inventory.Key {
	return lineKeys(doc.WarehouseID, doc.Lines)
}

func (invoiceStrategy) movements(r *run) []inventory.MovementInput {
	return lineMovements(r, r.doc.WarehouseID, inventory.TxSale, fmt.Sprintf("%s sale", r.doc.Number))
}

func (invoiceStrategy) entries(r *run) []ledger.EntryInput {
	return r.debit(ledger.RefInvoice, r.doc.GrandTotal, fmt.Sprintf("Invoice %s", r.doc.Number))
}

// cancelCheck refuses while approved receipts or returns depend on the invoice.
func (invoiceStrategy) cancelCheck(ctx context.Context, r *run) error {
	receipts, returns, err := r.tx.ApprovedReferences(ctx, r.doc.ID)
	if err != nil {
		return err
	}
	if receipts > 0 || returns > 0 {
		return shared.Conflict("invoice %s has %d approved receipt(s) and %d approved return(s); cancel them first", r.doc.Number, receipts, returns)
	}
	return nil
}

func (invoiceStrategy) cancelMovements(r *run) []inventory.MovementInput {
	return lineMovements(r, r.doc.WarehouseID, inventory.TxSaleCancel, fmt.Sprintf("%s cancelled", r.doc.Number))
}

func (invoiceStrategy) cancelEntries(r *run) []ledger.EntryInput {
	return r.credit(ledger.RefInvoice, r.doc.GrandTotal, fmt.Sprintf("Invoice %s cancelled", r.doc.Number))
}

func (invoiceStrategy) unlink(context.Context, *run) error { return nil }

// returnStrategy takes goods back against an approved invoice.
type returnStrategy struct{ noEffects }

func (returnStrategy) family() Family { return FamilySalesReturn }
func (returnStrategy) lines() lineRule { return linesQuantity }

func (returnStrategy) prepare(ctx context.Context, env createEnv, doc *Document) error {
	if err := requireCustomer(ctx, env, doc.CustomerID); err != nil {
		return err
	}
	invoice, err := loadInvoice(ctx, env, doc)
	if err != nil {
		return err
	}
	if doc.WarehouseID == 0 {
		doc.WarehouseID = invoice.WarehouseID
	}
	invoiced := make(map[int64]Line, len(invoice.Lines))
	sold := make(map[int64]int64, len(invoice.Lines))
	discounts := make(map[int64]decimal.Decimal, len(invoice.Lines))
	for _, l := range invoice.Lines {
		if _, ok := invoiced[l.ProductID]; !ok {
			invoiced[l.ProductID] = l
		}
		sold[l.ProductID] += l.Quantity
		discounts[l.ProductID] = discounts[l.ProductID].Add(l.Discount)
	}
	returning := make(map[int64]int64, len(doc.Lines))
	for i := range doc.Lines {
		line := &doc.Lines[i]
		src, ok := invoiced[line.ProductID]
		if !ok {
			return shared.Validation("lines[%d].productId: product %d is not on invoice %s", i, line.ProductID, invoice.Number)
		}
		if !line.Rate.IsZero() || !line.Discount.IsZero() || !line.TaxPercent.IsZero() {
			return shared.Validation("lines[%d]: rate, discount and taxPercent come from invoice %s", i, invoice.Number)
		}
		returning[line.ProductID] += line.Quantity
		if returning[line.ProductID] > sold[line.ProductID] {
			return shared.Validation("lines[%d].quantity: returns %d of product %d but invoice %s sold %d", i, returning[line.ProductID], line.ProductID, invoice.Number, sold[line.ProductID])
		}
		line.Rate = src.Rate
		line.TaxPercent = src.TaxPercent
		line.Discount = prorate(discounts[line.ProductID], line.Quantity, sold[line.ProductID])
	}
	return priceDocument(doc)
}

// prorate returns the share of an invoiced discount that belongs to qty of
// the sold units.
func prorate(discount decimal.Decimal, qty, sold int64) decimal.Decimal {
	if sold == 0 || discount.IsZero() {
		return decimal.Zero
	}
	return round2(discount.Mul(decimal.NewFromInt(qty)).Div(decimal.NewFromInt(sold)))
}

func (returnStrategy) warehouses(doc Document) []int64 { return []int64{doc.WarehouseID} }

func (returnStrategy) stockKeys(doc Document) []inventory.Key {
	return lineKeys(doc.WarehouseID, doc.Lines)
}

// check locks the invoice and enforces cumulative return limits.
func (returnStrategy) check(ctx context.Context, r *run) error {
	invoice, err := lockInvoice(ctx, r)
	if err != nil {
		return err
	}
	returned, err := r.tx.ReturnedQuantities(ctx, invoice.ID)
	if err != nil {
		return err
	}
	sold := make(map[int64]int64, len(invoice.Lines))
	for _, l := range invoice.Lines {
		sold[l.ProductID] += l.Quantity
	}
	for _, l := range r.doc.Lines {
		returned[l.ProductID] += l.Quantity
		if returned[l.ProductID] > sold[l.ProductID] {
			return shared.Conflict("product %d: %d returned against invoice %s which sold %d", l.ProductID, returned[l.ProductID], invoice.Number, sold[l.ProductID])
		}
	}
	if r.doc.GrandTotal.GreaterThan(invoice.GrandTotal) {
		return shared.Conflict("return total %s exceeds invoice %s total %s", r.doc.GrandTotal.StringFixed(2), invoice.Number, invoice.GrandTotal.StringFixed(2))
	}
	return nil
}

func (returnStrategy) movements(r *run) []inventory.MovementInput {
	return lineMovements(r, r.doc.WarehouseID, inventory.TxSaleReturn, fmt.Sprintf("%s return against invoice %d", r.doc.Number, r.doc.InvoiceID))
}

func (returnStrategy) entries(r *run) []ledger.EntryInput {
	return r.credit(ledger.RefReturn, r.doc.GrandTotal, fmt.Sprintf("Return %s", r.doc.Number))
}

// link lowers the invoice total by the return total.
func (returnStrategy) link(ctx context.Context, r *run) error {
	invoice := r.parent
	invoice.GrandTotal = round2(invoice.GrandTotal.Sub(r.doc.GrandTotal))
	recomputeDue(invoice)
	return r.tx.UpdateDocument(ctx, *invoice)
}

func (returnStrategy) cancelCheck(ctx context.Context, r *run) error {
	_, err := lockInvoice(ctx, r)
	return err
}

func (returnStrategy) cancelMovements(r *run) []inventory.MovementInput {
	return lineMovements(r, r.doc.WarehouseID, inventory.TxSaleReturnCancel, fmt.Sprintf("%s cancelled", r.doc.Number))
}

func (returnStrategy) cancelEntries(r *run) []ledger.EntryInput {
	return r.debit(ledger.RefReturn, r.doc.GrandTotal, fmt.Sprintf("Return %s cancelled", r.doc.Number))
}

func (returnStrategy) unlink(ctx context.Context, r *run) error {
	invoice := r.parent
	invoice.GrandTotal = round2(invoice.GrandTotal.Add(r.doc.GrandTotal))
	recomputeDue(invoice)
	return r.tx.UpdateDocument(ctx, *invoice)
}

// receiptStrategy records money received, optionally against an invoice.
type receiptStrategy struct{ noEffects }

func (receiptStrategy) family() Family { return FamilyReceipt }
func (receiptStrategy) lines() lineRule { return linesNone }

func (receiptStrategy) prepare(ctx context.Context, env createEnv, doc *Document) error {
	if err := requireCustomer(ctx, env, doc.CustomerID); err != nil {
		return err
	}
	doc.Amount = round2(doc.Amount)
	if !doc.Amount.IsPositive() {
		return shared.Validation("amount: must be greater than 0")
	}
	if doc.PaymentMode == "" || doc.PaymentMode == PaymentCredit || !doc.PaymentMode.valid() {
		return shared.Validation("paymentMode: unknown mode %q", doc.PaymentMode)
	}
	doc.WarehouseID = 0
	if doc.InvoiceID == 0 {
		return nil
	}
	invoice, err := loadInvoice(ctx, env, doc)
	if err != nil {
		return err
	}
	if doc.Amount.GreaterThan(invoice.DueAmount) {
		return shared.Validation("amount: %s exceeds invoice %s due %s", doc.Amount.StringFixed(2), invoice.Number, invoice.DueAmount.StringFixed(2))
	}
	return nil
}

func (receiptStrategy) warehouses(Document) []int64 { return nil }

func (receiptStrategy) check(ctx context.Context, r *run) error {
	if r.doc.InvoiceID == 0 {
		return nil
	}
	invoice, err := lockInvoice(ctx, r)
	if err != nil {
		return err
	}
	if r.doc.Amount.GreaterThan(invoice.DueAmount) {
		return shared.Conflict("receipt %s amount %s exceeds invoice %s due %s", r.doc.Number, r.doc.Amount.StringFixed(2), invoice.Number, invoice.DueAmount.StringFixed(2))
	}
	return nil
}

func (receiptStrategy) entries(r *run) []ledger.EntryInput {
	return r.credit(ledger.RefReceipt, r.doc.Amount, fmt.Sprintf("Receipt %s (%s)", r.doc.Number, r.doc.PaymentMode))
}

func (receiptStrategy) link(ctx context.Context, r *run) error {
	if r.parent == nil {
		return nil
	}
	invoice := r.parent
	invoice.PaidAmount = round2(invoice.PaidAmount.Add(r.doc.Amount))
	recomputeDue(invoice)
	return r.tx.UpdateDocument(ctx, *invoice)
}

func (receiptStrategy) cancelCheck(ctx context.Context, r *run) error {
	if r.doc.InvoiceID == 0 {
		return nil
	}
	_, err := lockInvoice(ctx, r)
	return err
}

func (receiptStrategy) cancelMovements(*run) []inventory.MovementInput { return nil }

func (receiptStrategy) cancelEntries(r *run) []ledger.EntryInput {
	return r.debit(ledger.RefReceipt, r.doc.Amount, fmt.Sprintf("Receipt %s cancelled", r.doc.Number))
}

func (receiptStrategy) unlink(ctx context.Context, r *run) error {
	if r.parent == nil {
		return nil
	}
	invoice := r.parent
	paid := round2(invoice.PaidAmount.Sub(r.doc.Amount))
	if paid.IsNegative() {
		paid = decimal.Zero
	}
	invoice.PaidAmount = paid
	recomputeDue(invoice)
	return r.tx.UpdateDocument(ctx, *invoice)
}

func requireCustomer(ctx context.Context, env createEnv, customerID int64) error {
	if customerID <= 0 {
		return shared.Validation("customerId: is required")
	}
	if _, err := env.lookup.GetCustomer(ctx, customerID); err != nil {
		if shared.KindOf(err) == shared.KindNotFound {
			return shared.Validation("customerId: customer %d not found", customerID)
		}
		return err
	}
	return nil
}

// loadInvoice resolves the parent invoice of a return or receipt at creation.
func loadInvoice(ctx context.Context, env createEnv, doc *Document) (Document, error) {
	if doc.InvoiceID <= 0 {
		return Document{}, shared.Validation("invoiceId: is required")
	}
	invoice, err := env.repo.GetDocument(ctx, doc.InvoiceID)
	if err != nil {
		if shared.KindOf(err) == shared.KindNotFound {
			return Document{}, shared.Validation("invoiceId: invoice %d not found", doc.InvoiceID)
		}
		return Document{}, err
	}
	if err := validParent(invoice, *doc); err != nil {
		return Document{}, shared.Validation("invoiceId: %s", err.Error())
	}
	return invoice, nil
}

// lockInvoice locks the parent invoice for the rest of the transaction.
func lockInvoice(ctx context.Context, r *run) (*Document, error) {
	invoice, err := r.tx.GetDocumentForUpdate(ctx, r.doc.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := validParent(invoice, r.doc); err != nil {
		return nil, shared.InvalidState("%s", err.Error())
	}
	r.parent = &invoice
	return r.parent, nil
}

func validParent(invoice Document, child Document) error {
	if invoice.Family != FamilySalesInvoice {
		return fmt.Errorf("document %d is not a sales invoice", invoice.ID)
	}
	if invoice.Status != StatusApproved {
		return fmt.Errorf("invoice %s is %s, not APPROVED", invoice.Number, invoice.Status)
	}
	if invoice.CustomerID != child.CustomerID {
		return fmt.Errorf("invoice %s belongs to customer %d", invoice.Number, invoice.CustomerID)
	}
	return nil
}
