package documents

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Pool is the connection surface the PostgreSQL repository needs.
type Pool interface {
	db.Beginner
	db.DBTX
}

// PGRepository persists documents in PostgreSQL.
type PGRepository struct {
	pool Pool
}

// NewRepository constructs the PostgreSQL document repository.
func NewRepository(pool Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	stock     inventory.TxStore
	customers ledger.TxStore
	tx        pgx.Tx
}

func (t *txRepo) LockLevel(ctx context.Context, warehouseID, productID int64) (inventory.StockLevel, error) {
	return t.stock.LockLevel(ctx, warehouseID, productID)
}

func (t *txRepo) SaveLevel(ctx context.Context, level inventory.StockLevel) error {
	return t.stock.SaveLevel(ctx, level)
}

func (t *txRepo) InsertMovement(ctx context.Context, m inventory.Movement) (inventory.Movement, error) {
	return t.stock.InsertMovement(ctx, m)
}

func (t *txRepo) LockCustomer(ctx context.Context, customerID int64) error {
	return t.customers.LockCustomer(ctx, customerID)
}

func (t *txRepo) LastBalance(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	return t.customers.LastBalance(ctx, customerID)
}

func (t *txRepo) InsertEntry(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	return t.customers.InsertEntry(ctx, e)
}

// WithTx runs fn in a read-committed transaction; approvals rely on explicit
// row locks rather than snapshot isolation.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, db.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			stock:     inventory.NewTxStore(tx),
			customers: ledger.NewTxStore(tx),
			tx:        tx,
		})
	})
}

const documentColumns = `id, uid, family, number, status, COALESCE(warehouse_id, 0), COALESCE(dest_warehouse_id, 0),
COALESCE(customer_id, 0), COALESCE(invoice_id, 0), party, remarks, payment_mode,
amount, sub_total, discount_total, taxable_total, tax_total, grand_total, paid_amount, due_amount,
created_by, created_at, COALESCE(approved_by, 0), approved_at, COALESCE(cancelled_by, 0), cancelled_at`

const lineColumns = `id, line_no, product_id, quantity, rate, discount, tax_percent, taxable_amount, tax_amount,
line_total, target_quantity, packing_type, pack_size, note`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var family, status, mode string
	err := row.Scan(&d.ID, &d.UID, &family, &d.Number, &status, &d.WarehouseID, &d.DestWarehouseID,
		&d.CustomerID, &d.InvoiceID, &d.Party, &d.Remarks, &mode,
		&d.Amount, &d.SubTotal, &d.DiscountTotal, &d.TaxableTotal, &d.TaxTotal, &d.GrandTotal, &d.PaidAmount, &d.DueAmount,
		&d.CreatedBy, &d.CreatedAt, &d.ApprovedBy, &d.ApprovedAt, &d.CancelledBy, &d.CancelledAt)
	d.Family, d.Status, d.PaymentMode = Family(family), Status(status), PaymentMode(mode)
	return d, err
}

func loadDocument(ctx context.Context, q db.DBTX, id int64, forUpdate bool) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	doc, err := scanDocument(q.QueryRow(ctx, query, id))
	if db.IsNoRows(err) {
		return Document{}, shared.NotFound("document %d not found", id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("documents: get %d: %w", id, err)
	}
	lines, err := loadLines(ctx, q, id)
	if err != nil {
		return Document{}, err
	}
	doc.Lines = lines
	return doc, nil
}

func loadLines(ctx context.Context, q db.DBTX, documentID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM document_lines WHERE document_id = $1 ORDER BY line_no`, documentID)
	if err != nil {
		return nil, fmt.Errorf("documents: lines of %d: %w", documentID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Line, error) {
		var l Line
		err := row.Scan(&l.ID, &l.LineNo, &l.ProductID, &l.Quantity, &l.Rate, &l.Discount, &l.TaxPercent,
			&l.TaxableAmount, &l.TaxAmount, &l.LineTotal, &l.TargetQuantity, &l.PackingType, &l.PackSize, &l.Note)
		return l, err
	})
}

// GetDocument loads a document and its lines.
func (r *PGRepository) GetDocument(ctx context.Context, id int64) (Document, error) {
	return loadDocument(ctx, r.pool, id, false)
}

// ListDocuments returns headers matching filter, newest first, and the total count.
func (r *PGRepository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	where := []string{"family = $1"}
	args := []any{string(filter.Family)}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(filter.WarehouseIDs) > 0 {
		args = append(args, filter.WarehouseIDs)
		where = append(where, fmt.Sprintf("(warehouse_id = ANY($%d) OR dest_warehouse_id = ANY($%d))", len(args), len(args)))
	}
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.InvoiceID != 0 {
		args = append(args, filter.InvoiceID)
		where = append(where, fmt.Sprintf("invoice_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("documents: count: %w", err)
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM documents WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		documentColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("documents: list: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Document, error) {
		return scanDocument(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("documents: list: %w", err)
	}
	return docs, total, nil
}

func (t *txRepo) NextSequence(ctx context.Context, family Family) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `INSERT INTO document_sequences (family, last_value) VALUES ($1, 1)
ON CONFLICT (family) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, string(family)).Scan(&seq)
	return seq, err
}

func (t *txRepo) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO documents
(uid, family, number, status, warehouse_id, dest_warehouse_id, customer_id, invoice_id, party, remarks, payment_mode,
 amount, sub_total, discount_total, taxable_total, tax_total, grand_total, paid_amount, due_amount, created_by, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, 0), NULLIF($7, 0), NULLIF($8, 0), $9, $10, $11,
 $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
RETURNING id`,
		doc.UID, string(doc.Family), doc.Number, string(doc.Status), doc.WarehouseID, doc.DestWarehouseID,
		doc.CustomerID, doc.InvoiceID, doc.Party, doc.Remarks, string(doc.PaymentMode),
		doc.Amount, doc.SubTotal, doc.DiscountTotal, doc.TaxableTotal, doc.TaxTotal, doc.GrandTotal,
		doc.PaidAmount, doc.DueAmount, doc.CreatedBy, doc.CreatedAt).Scan(&doc.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Document{}, shared.Conflict("document number %s already exists", doc.Number)
		}
		return Document{}, err
	}
	if len(doc.Lines) == 0 {
		return doc, nil
	}
	batch := &pgx.Batch{}
	for _, l := range doc.Lines {
		batch.Queue(`INSERT INTO document_lines
(document_id, line_no, product_id, quantity, rate, discount, tax_percent, taxable_amount, tax_amount,
 line_total, target_quantity, packing_type, pack_size, note)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
			doc.ID, l.LineNo, l.ProductID, l.Quantity, l.Rate, l.Discount, l.TaxPercent, l.TaxableAmount, l.TaxAmount,
			l.LineTotal, l.TargetQuantity, l.PackingType, l.PackSize, l.Note)
	}
	results := t.tx.SendBatch(ctx, batch)
	for i := range doc.Lines {
		if err := results.QueryRow().Scan(&doc.Lines[i].ID); err != nil {
			_ = results.Close()
			return Document{}, fmt.Errorf("documents: insert line %d: %w", i+1, err)
		}
	}
	return doc, results.Close()
}

func (t *txRepo) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	return loadDocument(ctx, t.tx, id, true)
}

// UpdateDocument persists status, stamps and money fields. Lines are
// immutable once created.
func (t *txRepo) UpdateDocument(ctx context.Context, doc Document) error {
	tag, err := t.tx.Exec(ctx, `UPDATE documents SET status = $2, grand_total = $3, paid_amount = $4, due_amount = $5,
approved_by = NULLIF($6, 0), approved_at = $7, cancelled_by = NULLIF($8, 0), cancelled_at = $9
WHERE id = $1`,
		doc.ID, string(doc.Status), doc.GrandTotal, doc.PaidAmount, doc.DueAmount,
		doc.ApprovedBy, doc.ApprovedAt, doc.CancelledBy, doc.CancelledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("document %d not found", doc.ID)
	}
	return nil
}

func (t *txRepo) ApprovedReferences(ctx context.Context, invoiceID int64) (int, int, error) {
	var receipts, returns int
	err := t.tx.QueryRow(ctx, `SELECT
  COUNT(*) FILTER (WHERE family = $2),
  COUNT(*) FILTER (WHERE family = $3)
FROM documents WHERE invoice_id = $1 AND status = $4`,
		invoiceID, string(FamilyReceipt), string(FamilySalesReturn), string(StatusApproved)).Scan(&receipts, &returns)
	return receipts, returns, err
}

func (t *txRepo) ReturnedQuantities(ctx context.Context, invoiceID int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT l.product_id, SUM(l.quantity)
FROM document_lines l JOIN documents d ON d.id = l.document_id
WHERE d.invoice_id = $1 AND d.family = $2 AND d.status = $3
GROUP BY l.product_id`, invoiceID, string(FamilySalesReturn), string(StatusApproved))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var product, qty int64
		if err := rows.Scan(&product, &qty); err != nil {
			return nil, err
		}
		out[product] = qty
	}
	return out, rows.Err()
}
