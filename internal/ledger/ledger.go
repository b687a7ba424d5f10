package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// ErrInvalidLedgerEntry rejects entries without exactly one non-zero side.
var ErrInvalidLedgerEntry = &shared.Error{Kind: shared.KindValidation, Message: "ledger: exactly one of debit or credit must be non-zero"}

// TxStore is the transaction-scoped customer ledger storage.
type TxStore interface {
	// LockCustomer serialises appends for one customer until the transaction ends.
	LockCustomer(ctx context.Context, customerID int64) error
	LastBalance(ctx context.Context, customerID int64) (decimal.Decimal, error)
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
}

// AppendEntry appends one entry with balanceAfter = last + debit - credit,
// rounded to 2 places. The customer partition is locked before the last
// balance is read.
func AppendEntry(ctx context.Context, tx TxStore, input EntryInput) (Entry, error) {
	if input.CustomerID == 0 {
		return Entry{}, shared.Validation("ledger: customer required")
	}
	debit := input.Debit.Round(2)
	credit := input.Credit.Round(2)
	if debit.IsNegative() || credit.IsNegative() {
		return Entry{}, shared.Validation("ledger: amounts must not be negative")
	}
	if debit.IsZero() == credit.IsZero() {
		return Entry{}, ErrInvalidLedgerEntry
	}

	if err := tx.LockCustomer(ctx, input.CustomerID); err != nil {
		return Entry{}, fmt.Errorf("ledger: lock customer: %w", err)
	}
	last, err := tx.LastBalance(ctx, input.CustomerID)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: last balance: %w", err)
	}

	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	entry, err := tx.InsertEntry(ctx, Entry{
		CustomerID:   input.CustomerID,
		RefType:      input.RefType,
		RefID:        input.RefID,
		Debit:        debit,
		Credit:       credit,
		BalanceAfter: last.Add(debit).Sub(credit).Round(2),
		CreatedBy:    input.CreatedBy,
		Note:         input.Note,
		CreatedAt:    at,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: insert entry: %w", err)
	}
	return entry, nil
}

// Verifier replays entries in creation order, across any mix of customers,
// and collects rows whose stored balance differs from the replayed one.
type Verifier struct {
	running    map[int64]decimal.Decimal
	checked    int
	Mismatches []Mismatch
}

// NewVerifier constructs an empty Verifier.
func NewVerifier() *Verifier {
	return &Verifier{running: make(map[int64]decimal.Decimal)}
}

// Add replays one entry.
func (v *Verifier) Add(e Entry) error {
	next := v.running[e.CustomerID].Add(e.Debit).Sub(e.Credit).Round(2)
	if !next.Equal(e.BalanceAfter) {
		v.Mismatches = append(v.Mismatches, Mismatch{CustomerID: e.CustomerID, EntryID: e.ID, Stored: e.BalanceAfter, Replayed: next})
	}
	v.running[e.CustomerID] = next
	v.checked++
	return nil
}

// Checked returns the number of replayed entries.
func (v *Verifier) Checked() int {
	return v.checked
}

// Verify replays a complete entry list.
func Verify(entries []Entry) []Mismatch {
	v := NewVerifier()
	for _, e := range entries {
		_ = v.Add(e)
	}
	return v.Mismatches
}
