package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// TxStore is the transaction-scoped stock ledger storage.
type TxStore interface {
	// LockLevel returns the level row locked for update, creating it at zero
	// when absent.
	LockLevel(ctx context.Context, warehouseID, productID int64) (StockLevel, error)
	// SaveLevel persists a level previously returned by LockLevel.
	SaveLevel(ctx context.Context, level StockLevel) error
	// InsertMovement appends to the movement log.
	InsertMovement(ctx context.Context, m Movement) (Movement, error)
}

// ApplyMovement is the only way stock levels change: it locks the level,
// rejects outbound movements that would go negative, persists the new
// quantity and appends the movement, all inside the caller's transaction.
func ApplyMovement(ctx context.Context, tx TxStore, input MovementInput) (Movement, int64, error) {
	if input.WarehouseID == 0 || input.ProductID == 0 {
		return Movement{}, 0, shared.Validation("inventory: warehouse and product required")
	}
	if input.Quantity <= 0 {
		return Movement{}, 0, shared.Validation("inventory: movement quantity must be positive")
	}
	direction, ok := input.TxType.Direction()
	if !ok {
		return Movement{}, 0, fmt.Errorf("%w: %q", ErrUnknownTxType, input.TxType)
	}

	level, err := tx.LockLevel(ctx, input.WarehouseID, input.ProductID)
	if err != nil {
		return Movement{}, 0, fmt.Errorf("inventory: lock level: %w", err)
	}

	newQty := level.Quantity + input.Quantity
	if direction == DirectionOut {
		if level.Quantity < input.Quantity {
			return Movement{}, 0, shared.InsufficientStock(
				"insufficient stock for product %d in warehouse %d: on hand %d, required %d",
				input.ProductID, input.WarehouseID, level.Quantity, input.Quantity)
		}
		newQty = level.Quantity - input.Quantity
	}

	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	level.Quantity = newQty
	level.UpdatedAt = at
	if err := tx.SaveLevel(ctx, level); err != nil {
		return Movement{}, 0, fmt.Errorf("inventory: save level: %w", err)
	}

	movement, err := tx.InsertMovement(ctx, Movement{
		WarehouseID: input.WarehouseID,
		ProductID:   input.ProductID,
		Direction:   direction,
		Quantity:    input.Quantity,
		TxType:      input.TxType,
		DocumentID:  input.DocumentID,
		CreatedBy:   input.CreatedBy,
		ApprovedBy:  input.ApprovedBy,
		Note:        input.Note,
		CreatedAt:   at,
	})
	if err != nil {
		return Movement{}, 0, fmt.Errorf("inventory: insert movement: %w", err)
	}
	return movement, newQty, nil
}
