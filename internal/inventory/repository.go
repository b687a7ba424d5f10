package inventory

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
)

// NewTxStore binds the stock ledger to an open transaction.
func NewTxStore(tx db.DBTX) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx db.DBTX
}

func (s *txStore) LockLevel(ctx context.Context, warehouseID, productID int64) (StockLevel, error) {
	_, err := s.tx.Exec(ctx, `INSERT INTO stock_levels (warehouse_id, product_id, quantity, updated_at)
VALUES ($1, $2, 0, NOW()) ON CONFLICT (warehouse_id, product_id) DO NOTHING`, warehouseID, productID)
	if err != nil {
		return StockLevel{}, err
	}
	var level StockLevel
	err = s.tx.QueryRow(ctx, `SELECT warehouse_id, product_id, quantity, updated_at
FROM stock_levels WHERE warehouse_id = $1 AND product_id = $2 FOR UPDATE`, warehouseID, productID).
		Scan(&level.WarehouseID, &level.ProductID, &level.Quantity, &level.UpdatedAt)
	return level, err
}

func (s *txStore) SaveLevel(ctx context.Context, level StockLevel) error {
	tag, err := s.tx.Exec(ctx, `UPDATE stock_levels SET quantity = $3, updated_at = $4
WHERE warehouse_id = $1 AND product_id = $2`, level.WarehouseID, level.ProductID, level.Quantity, level.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("stock level %d/%d missing", level.WarehouseID, level.ProductID)
	}
	return nil
}

func (s *txStore) InsertMovement(ctx context.Context, m Movement) (Movement, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_movements
(warehouse_id, product_id, direction, quantity, tx_type, document_id, created_by, approved_by, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, 0), $9, $10) RETURNING id`,
		m.WarehouseID, m.ProductID, string(m.Direction), m.Quantity, string(m.TxType),
		m.DocumentID, m.CreatedBy, m.ApprovedBy, m.Note, m.CreatedAt).Scan(&m.ID)
	return m, err
}

// Repository serves pool-level reads of the stock ledger.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Quantity returns the on-hand quantity, zero when no row exists yet.
func (r *Repository) Quantity(ctx context.Context, warehouseID, productID int64) (int64, error) {
	var qty int64
	err := r.db.QueryRow(ctx, `SELECT quantity FROM stock_levels WHERE warehouse_id = $1 AND product_id = $2`,
		warehouseID, productID).Scan(&qty)
	if db.IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("inventory: quantity: %w", err)
	}
	return qty, nil
}

// Drift lists stock levels whose quantity differs from the replayed movement log.
func (r *Repository) Drift(ctx context.Context) ([]Drift, error) {
	rows, err := r.db.Query(ctx, `SELECT l.warehouse_id, l.product_id, l.quantity,
  COALESCE(SUM(CASE m.direction WHEN 'IN' THEN m.quantity ELSE -m.quantity END), 0) AS replayed
FROM stock_levels l
LEFT JOIN stock_movements m ON m.warehouse_id = l.warehouse_id AND m.product_id = l.product_id
GROUP BY l.warehouse_id, l.product_id, l.quantity
HAVING l.quantity <> COALESCE(SUM(CASE m.direction WHEN 'IN' THEN m.quantity ELSE -m.quantity END), 0)
ORDER BY l.warehouse_id, l.product_id`)
	if err != nil {
		return nil, fmt.Errorf("inventory: drift: %w", err)
	}
	defer rows.Close()
	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.WarehouseID, &d.ProductID, &d.Cached, &d.Replayed); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}
