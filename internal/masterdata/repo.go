package masterdata

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Repository reads master data from PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository creates a new master data repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT id, sku, name, category, unit, created_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Unit, &p.CreatedAt)
	if err != nil {
		return Product{}, lookupError("product", id, err)
	}
	return p, nil
}

// GetWarehouse loads a warehouse by id.
func (r *Repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, code, name, address, is_active, created_at FROM warehouses WHERE id = $1`, id).
		Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.Active, &w.CreatedAt)
	if err != nil {
		return Warehouse{}, lookupError("warehouse", id, err)
	}
	return w, nil
}

// GetCustomer loads a customer by id.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.db.QueryRow(ctx, `SELECT id, code, name, COALESCE(phone, ''), created_at FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Phone, &c.CreatedAt)
	if err != nil {
		return Customer{}, lookupError("customer", id, err)
	}
	return c, nil
}

func lookupError(entity string, id int64, err error) error {
	if db.IsNoRows(err) {
		return shared.NotFound("%s %d not found", entity, id)
	}
	return fmt.Errorf("masterdata: get %s: %w", entity, err)
}
