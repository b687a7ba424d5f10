package documents

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
)

// lineRule selects the generic line validation applied at creation.
type lineRule int

const (
	linesQuantity lineRule = iota
	linesTarget
	linesNone
)

// run is the state of one approval or cancellation inside its transaction.
type run struct {
	tx     TxRepository
	doc    Document
	actor  access.Principal
	at     time.Time
	onHand map[inventory.Key]int64
	// parent is the invoice a return or receipt refers to, locked for update.
	parent *Document
}

type createEnv struct {
	lookup Lookup
	repo   Repository
}

// strategy supplies the family-specific parts of the document lifecycle. The
// generic engine owns ordering, locking and persistence.
type strategy interface {
	family() Family
	lines() lineRule
	// prepare runs family checks at creation and fills derived fields.
	prepare(ctx context.Context, env createEnv, doc *Document) error
	// authorize applies role requirements beyond warehouse scope.
	authorize(p access.Principal) error
	// warehouses lists the warehouses subject to access checks.
	warehouses(doc Document) []int64
	// stockKeys lists every level the document reads or moves. Levels are
	// locked from this list alone, so it must cover all movement keys.
	stockKeys(doc Document) []inventory.Key
	// check enforces approval-time business rules before any mutation.
	check(ctx context.Context, r *run) error
	movements(r *run) []inventory.MovementInput
	entries(r *run) []ledger.EntryInput
	// link applies approval effects to related documents.
	link(ctx context.Context, r *run) error
}

// canceller is implemented by families that can leave APPROVED for CANCELLED.
type canceller interface {
	cancelCheck(ctx context.Context, r *run) error
	cancelMovements(r *run) []inventory.MovementInput
	cancelEntries(r *run) []ledger.EntryInput
	unlink(ctx context.Context, r *run) error
}

var strategies = map[Family]strategy{
	FamilyGRN:          grnStrategy{},
	FamilyDispatch:     dispatchStrategy{},
	FamilyTransfer:     transferStrategy{},
	FamilySalesInvoice: invoiceStrategy{},
	FamilySalesReturn:  returnStrategy{},
	FamilyReceipt:      receiptStrategy{},
	FamilyAdjustment:   adjustmentStrategy{},
}

func strategyFor(f Family) (strategy, bool) {
	s, ok := strategies[f]
	return s, ok
}

// noEffects provides empty defaults for strategies without a given effect.
type noEffects struct{}

func (noEffects) authorize(access.Principal) error { return nil }
func (noEffects) check(context.Context, *run) error { return nil }
func (noEffects) movements(*run) []inventory.MovementInput { return nil }
func (noEffects) entries(*run) []ledger.EntryInput { return nil }
func (noEffects) link(context.Context, *run) error { return nil }
func (noEffects) stockKeys(Document) []inventory.Key { return nil }

func lineKeys(warehouseID int64, lines []Line) []inventory.Key {
	keys := make([]inventory.Key, 0, len(lines))
	for _, l := range lines {
		keys = append(keys, inventory.Key{WarehouseID: warehouseID, ProductID: l.ProductID})
	}
	return keys
}

// lineMovements builds one movement per line with a positive quantity.
func lineMovements(r *run, warehouseID int64, txType inventory.TxType, note string) []inventory.MovementInput {
	moves := make([]inventory.MovementInput, 0, len(r.doc.Lines))
	for _, l := range r.doc.Lines {
		if l.Quantity <= 0 {
			continue
		}
		moves = append(moves, r.movement(warehouseID, l.ProductID, txType, l.Quantity, note))
	}
	return moves
}

func (r *run) movement(warehouseID, productID int64, txType inventory.TxType, qty int64, note string) inventory.MovementInput {
	return inventory.MovementInput{
		WarehouseID: warehouseID,
		ProductID:   productID,
		TxType:      txType,
		Quantity:    qty,
		DocumentID:  r.doc.ID,
		CreatedBy:   r.doc.CreatedBy,
		ApprovedBy:  r.actor.ID,
		Note:        note,
		At:          r.at,
	}
}

func (r *run) debit(ref ledger.RefType, amount decimal.Decimal, note string) []ledger.EntryInput {
	return r.entry(ref, amount, decimal.Zero, note)
}

func (r *run) credit(ref ledger.RefType, amount decimal.Decimal, note string) []ledger.EntryInput {
	return r.entry(ref, decimal.Zero, amount, note)
}

// entry skips zero amounts, which the ledger would reject.
func (r *run) entry(ref ledger.RefType, debit, credit decimal.Decimal, note string) []ledger.EntryInput {
	if round2(debit).IsZero() && round2(credit).IsZero() {
		return nil
	}
	return []ledger.EntryInput{{
		CustomerID: r.doc.CustomerID,
		RefType:    ref,
		RefID:      r.doc.ID,
		Debit:      debit,
		Credit:     credit,
		CreatedBy:  r.actor.ID,
		Note:       note,
		At:         r.at,
	}}
}
