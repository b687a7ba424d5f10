package reporting

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
)

// Pool is the connection surface used by the PostgreSQL store.
type Pool interface {
	db.Beginner
	db.DBTX
}

// PGStore reads reports from PostgreSQL.
type PGStore struct {
	pool Pool
}

// NewStore constructs PGStore.
func NewStore(pool Pool) *PGStore {
	return &PGStore{pool: pool}
}

// StockLevels lists levels joined with warehouse and product labels.
func (s *PGStore) StockLevels(ctx context.Context, f StockFilter) ([]StockRow, int, error) {
	const where = `WHERE ($1 = 0 OR l.warehouse_id = $1)
  AND ($2 = 0 OR l.product_id = $2)
  AND (cardinality($3::bigint[]) = 0 OR l.warehouse_id = ANY($3))`
	ids := f.WarehouseIDs
	if ids == nil {
		ids = []int64{}
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_levels l `+where, f.WarehouseID, f.ProductID, ids).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reporting: count stock: %w", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT l.warehouse_id, w.code, l.product_id, p.sku, p.name, l.quantity, l.updated_at
FROM stock_levels l
JOIN warehouses w ON w.id = l.warehouse_id
JOIN products p ON p.id = l.product_id
`+where+`
ORDER BY w.code, p.sku
LIMIT $4 OFFSET $5`, f.WarehouseID, f.ProductID, ids, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("reporting: stock: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockRow, error) {
		var r StockRow
		err := row.Scan(&r.WarehouseID, &r.WarehouseCode, &r.ProductID, &r.SKU, &r.ProductName, &r.Quantity, &r.UpdatedAt)
		return r, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("reporting: stock: %w", err)
	}
	return out, total, nil
}

// MovementTail reads the newest movements and the quantity before them in
// one snapshot.
func (s *PGStore) MovementTail(ctx context.Context, warehouseID, productID int64, limit int) (int64, []inventory.Movement, error) {
	var (
		opening int64
		moves   []inventory.Movement
	)
	err := db.WithTxOptions(ctx, s.pool, db.ReadOnlySnapshot, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, warehouse_id, product_id, direction, quantity, tx_type, document_id,
  created_by, COALESCE(approved_by, 0), note, created_at
FROM stock_movements WHERE warehouse_id = $1 AND product_id = $2
ORDER BY id DESC LIMIT $3`, warehouseID, productID, limit)
		if err != nil {
			return err
		}
		moves, err = pgx.CollectRows(rows, scanMovement)
		if err != nil {
			return err
		}
		slices.Reverse(moves)
		before := int64(math.MaxInt64)
		if len(moves) > 0 {
			before = moves[0].ID
		}
		return tx.QueryRow(ctx, `SELECT COALESCE(SUM(CASE direction WHEN 'IN' THEN quantity ELSE -quantity END), 0)
FROM stock_movements WHERE warehouse_id = $1 AND product_id = $2 AND id < $3`, warehouseID, productID, before).Scan(&opening)
	})
	if err != nil {
		return 0, nil, fmt.Errorf("reporting: movements: %w", err)
	}
	return opening, moves, nil
}

func scanMovement(row pgx.CollectableRow) (inventory.Movement, error) {
	var m inventory.Movement
	var dir, txType string
	err := row.Scan(&m.ID, &m.WarehouseID, &m.ProductID, &dir, &m.Quantity, &txType, &m.DocumentID,
		&m.CreatedBy, &m.ApprovedBy, &m.Note, &m.CreatedAt)
	m.Direction, m.TxType = inventory.Direction(dir), inventory.TxType(txType)
	return m, err
}

// Outstanding lists customers whose latest balance is non-zero.
func (s *PGStore) Outstanding(ctx context.Context, limit, offset int) ([]OutstandingRow, int, error) {
	const base = `WITH totals AS (
  SELECT customer_id, SUM(debit) AS debit, SUM(credit) AS credit
  FROM customer_ledger_entries GROUP BY customer_id
  HAVING SUM(debit) - SUM(credit) <> 0
)`
	var total int
	if err := s.pool.QueryRow(ctx, base+` SELECT COUNT(*) FROM totals`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reporting: count outstanding: %w", err)
	}
	rows, err := s.pool.Query(ctx, base+` SELECT c.id, c.code, c.name, t.debit, t.credit, t.debit - t.credit
FROM totals t JOIN customers c ON c.id = t.customer_id
ORDER BY t.debit - t.credit DESC, c.code
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("reporting: outstanding: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutstandingRow, error) {
		var r OutstandingRow
		err := row.Scan(&r.CustomerID, &r.CustomerCode, &r.CustomerName, &r.Debit, &r.Credit, &r.Balance)
		return r, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("reporting: outstanding: %w", err)
	}
	return out, total, nil
}

// StatementEntries reads the opening balance and period entries in one snapshot.
func (s *PGStore) StatementEntries(ctx context.Context, customerID int64, from, end time.Time) (decimal.Decimal, []ledger.Entry, error) {
	opening := decimal.Zero
	var entries []ledger.Entry
	err := db.WithTxOptions(ctx, s.pool, db.ReadOnlySnapshot, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT balance_after FROM customer_ledger_entries
WHERE customer_id = $1 AND created_at < $2 ORDER BY id DESC LIMIT 1`, customerID, from).Scan(&opening)
		if err != nil && !db.IsNoRows(err) {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id, customer_id, ref_type, ref_id, debit, credit, balance_after, created_by, note, created_at
FROM customer_ledger_entries WHERE customer_id = $1 AND created_at >= $2 AND created_at < $3 ORDER BY id`, customerID, from, end)
		if err != nil {
			return err
		}
		entries, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Entry, error) {
			return ledger.ScanEntry(row)
		})
		return err
	})
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("reporting: statement: %w", err)
	}
	return opening, entries, nil
}

// Collections sums approved receipts per approval day and payment mode.
func (s *PGStore) Collections(ctx context.Context, from, end time.Time) ([]CollectionRow, error) {
	rows, err := s.pool.Query(ctx, `SELECT date_trunc('day', approved_at AT TIME ZONE 'UTC') AS day, payment_mode, SUM(amount), COUNT(*)
FROM documents
WHERE family = 'RECEIPT' AND status = 'APPROVED' AND approved_at >= $1 AND approved_at < $2
GROUP BY 1, 2 ORDER BY 1, 2`, from, end)
	if err != nil {
		return nil, fmt.Errorf("reporting: collections: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CollectionRow, error) {
		var r CollectionRow
		err := row.Scan(&r.Day, &r.PaymentMode, &r.Amount, &r.Count)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("reporting: collections: %w", err)
	}
	return out, nil
}
