package documents

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// grnStrategy receives goods into a warehouse.
type grnStrategy struct{ noEffects }

func (grnStrategy) family() Family { return FamilyGRN }
func (grnStrategy) lines() lineRule { return linesQuantity }

func (grnStrategy) prepare(_ context.Context, _ createEnv, doc *Document) error {
	return requireWarehouse(doc.WarehouseID, "warehouseId")
}

func (grnStrategy) warehouses(doc Document) []int64 { return []int64{doc.WarehouseID} }

func (grnStrategy) stockKeys(doc Document) []inventory.Key {
	return lineKeys(doc.WarehouseID, doc.Lines)
}

func (grnStrategy) movements(r *run) []inventory.MovementInput {
	return lineMovements(r, r.doc.WarehouseID, inventory.TxGRN, fmt.Sprintf("%s received from %s", r.doc.Number, partyOr(r.doc.Party, "supplier")))
}

// dispatchStrategy sends goods out of a warehouse without a sale.
type dispatchStrategy struct{ noEffects }

func (dispatchStrategy) family() Family { return FamilyDispatch }
func (dispatchStrategy) lines() lineRule { return linesQuantity }

func (dispatchStrategy) prepare(_ context.Context, _ createEnv, doc *Document) error {
	return requireWarehouse(doc.WarehouseID, "warehouseId")
}

func (dispatchStrategy) warehouses(doc Document) []int64 { return []int64{doc.WarehouseID} }

func (dispatchStrategy) stockKeys(doc Document) []inventory.Key {
	return lineKeys(doc.WarehouseID, doc.Lines)
}

func (dispatchStrategy) movements(r *run) []inventory.MovementInput {
	return lineMovements(r, r.doc.WarehouseID, inventory.TxDispatch, fmt.Sprintf("%s dispatched to %s", r.doc.Number, partyOr(r.doc.Party, "party")))
}

// transferStrategy moves goods between two warehouses.
type transferStrategy struct{ noEffects }

func (transferStrategy) family() Family { return FamilyTransfer }
func (transferStrategy) lines() lineRule { return linesQuantity }

func (transferStrategy) prepare(_ context.Context, _ createEnv, doc *Document) error {
	if err := requireWarehouse(doc.WarehouseID, "warehouseId"); err != nil {
		return err
	}
	if err := requireWarehouse(doc.DestWarehouseID, "destWarehouseId"); err != nil {
		return err
	}
	if doc.WarehouseID == doc.DestWarehouseID {
		return shared.Validation("destWarehouseId: must differ from source warehouse %d", doc.WarehouseID)
	}
	return nil
}

func (transferStrategy) warehouses(doc Document) []int64 {
	return []int64{doc.WarehouseID, doc.DestWarehouseID}
}

func (transferStrategy) stockKeys(doc Document) []inventory.Key {
	return append(lineKeys(doc.WarehouseID, doc.Lines), lineKeys(doc.DestWarehouseID, doc.Lines)...)
}

func (transferStrategy) movements(r *run) []inventory.MovementInput {
	src, dst := r.doc.WarehouseID, r.doc.DestWarehouseID
	moves := make([]inventory.MovementInput, 0, 2*len(r.doc.Lines))
	for _, l := range r.doc.Lines {
		if l.Quantity <= 0 {
			continue
		}
		moves = append(moves,
			r.movement(src, l.ProductID, inventory.TxTransferOut, l.Quantity, fmt.Sprintf("%s transfer to warehouse %d", r.doc.Number, dst)),
			r.movement(dst, l.ProductID, inventory.TxTransferIn, l.Quantity, fmt.Sprintf("%s transfer from warehouse %d", r.doc.Number, src)),
		)
	}
	return moves
}

// adjustmentStrategy sets stock to an operator supplied target.
type adjustmentStrategy struct{ noEffects }

func (adjustmentStrategy) family() Family { return FamilyAdjustment }
func (adjustmentStrategy) lines() lineRule { return linesTarget }

func (adjustmentStrategy) prepare(_ context.Context, _ createEnv, doc *Document) error {
	if err := requireWarehouse(doc.WarehouseID, "warehouseId"); err != nil {
		return err
	}
	seen := make(map[int64]int, len(doc.Lines))
	for i, l := range doc.Lines {
		if prev, dup := seen[l.ProductID]; dup {
			return shared.Validation("lines[%d].productId: product %d already adjusted on line %d", i, l.ProductID, prev)
		}
		seen[l.ProductID] = i
	}
	return nil
}

// authorize limits setting stock levels to elevated roles.
func (adjustmentStrategy) authorize(p access.Principal) error { return access.RequireElevated(p) }

func (adjustmentStrategy) warehouses(doc Document) []int64 { return []int64{doc.WarehouseID} }

func (adjustmentStrategy) stockKeys(doc Document) []inventory.Key {
	return lineKeys(doc.WarehouseID, doc.Lines)
}

// movements emits the signed delta between target and on-hand quantity;
// lines already at target produce nothing.
func (adjustmentStrategy) movements(r *run) []inventory.MovementInput {
	var moves []inventory.MovementInput
	for _, l := range r.doc.Lines {
		if l.TargetQuantity < 0 {
			continue
		}
		current := r.onHand[inventory.Key{WarehouseID: r.doc.WarehouseID, ProductID: l.ProductID}]
		delta := l.TargetQuantity - current
		note := fmt.Sprintf("%s set to %d (was %d)", r.doc.Number, l.TargetQuantity, current)
		if r.doc.Remarks != "" {
			note += ": " + r.doc.Remarks
		}
		switch {
		case delta > 0:
			moves = append(moves, r.movement(r.doc.WarehouseID, l.ProductID, inventory.TxAdjustmentPositive, delta, note))
		case delta < 0:
			moves = append(moves, r.movement(r.doc.WarehouseID, l.ProductID, inventory.TxAdjustmentNegative, -delta, note))
		}
	}
	return moves
}

func requireWarehouse(id int64, field string) error {
	if id <= 0 {
		return shared.Validation("%s: is required", field)
	}
	return nil
}

func partyOr(party, fallback string) string {
	if party == "" {
		return fallback
	}
	return party
}
