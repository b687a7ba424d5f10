package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// NewTxStore binds the customer ledger to an open transaction.
func NewTxStore(tx db.DBTX) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx db.DBTX
}

func (s *txStore) LockCustomer(ctx context.Context, customerID int64) error {
	_, err := s.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, shared.CustomerLedgerLockKey(customerID))
	return err
}

func (s *txStore) LastBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	return lastBalance(ctx, s.tx, customerID)
}

func (s *txStore) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO customer_ledger_entries
(customer_id, ref_type, ref_id, debit, credit, balance_after, created_by, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		e.CustomerID, string(e.RefType), e.RefID, e.Debit, e.Credit, e.BalanceAfter, e.CreatedBy, e.Note, e.CreatedAt).Scan(&e.ID)
	return e, err
}

func lastBalance(ctx context.Context, q db.DBTX, customerID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.QueryRow(ctx, `SELECT balance_after FROM customer_ledger_entries
WHERE customer_id = $1 ORDER BY id DESC LIMIT 1`, customerID).Scan(&balance)
	if db.IsNoRows(err) {
		return decimal.Zero, nil
	}
	return balance, err
}

// Repository serves pool-level reads of the customer ledger.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// LastBalance returns the balance after the customer's latest entry, or zero.
func (r *Repository) LastBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	balance, err := lastBalance(ctx, r.db, customerID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: last balance: %w", err)
	}
	return balance, nil
}

// Entries streams every entry in creation order to fn.
func (r *Repository) Entries(ctx context.Context, fn func(Entry) error) error {
	rows, err := r.db.Query(ctx, `SELECT id, customer_id, ref_type, ref_id, debit, credit, balance_after, created_by, note, created_at
FROM customer_ledger_entries ORDER BY id`)
	if err != nil {
		return fmt.Errorf("ledger: entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := ScanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ScanEntry reads the column order used by every ledger query.
func ScanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var ref string
	err := row.Scan(&e.ID, &e.CustomerID, &ref, &e.RefID, &e.Debit, &e.Credit, &e.BalanceAfter, &e.CreatedBy, &e.Note, &e.CreatedAt)
	e.RefType = RefType(ref)
	return e, err
}
