// Package ledger is the customer ledger: an append-only debit/credit log with
// a running balance per customer.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefType names the document family behind an entry.
type RefType string

const (
	RefInvoice RefType = "INVOICE"
	RefReceipt RefType = "RECEIPT"
	RefReturn  RefType = "RETURN"
)

// Entry is an immutable customer ledger row.
type Entry struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customerId"`
	RefType      RefType         `json:"refType"`
	RefID        int64           `json:"refId"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	CreatedBy    int64           `json:"createdBy"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// EntryInput describes an entry to append.
type EntryInput struct {
	CustomerID int64
	RefType    RefType
	RefID      int64
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	CreatedBy  int64
	Note       string
	At         time.Time
}

// Mismatch is an entry whose stored balance disagrees with the replayed one.
type Mismatch struct {
	CustomerID int64           `json:"customerId"`
	EntryID    int64           `json:"entryId"`
	Stored     decimal.Decimal `json:"stored"`
	Replayed   decimal.Decimal `json:"replayed"`
}
