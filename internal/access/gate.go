package access

import "github.com/odyssey-erp/odyssey-stock/internal/shared"

// CheckWarehouseAccess rejects principals outside the warehouse's scope.
// Elevated roles pass, scoped roles are checked against their assigned set and
// every other role is denied.
func CheckWarehouseAccess(p Principal, warehouseID int64) error {
	if p.ID == 0 {
		return shared.AccessDenied("access: unauthenticated principal")
	}
	switch {
	case p.IsElevated():
		return nil
	case p.IsScoped() && p.hasWarehouse(warehouseID):
		return nil
	default:
		return shared.AccessDenied("access: user %d may not operate on warehouse %d", p.ID, warehouseID)
	}
}

// CheckWarehouses applies CheckWarehouseAccess to every id, skipping zeros.
func CheckWarehouses(p Principal, warehouseIDs ...int64) error {
	for _, id := range warehouseIDs {
		if id == 0 {
			continue
		}
		if err := CheckWarehouseAccess(p, id); err != nil {
			return err
		}
	}
	return nil
}

// RequireElevated gates actions reserved for elevated roles.
func RequireElevated(p Principal) error {
	if p.ID != 0 && p.IsElevated() {
		return nil
	}
	return shared.AccessDenied("access: action requires an elevated role")
}

// RequireOperator gates warehouse-less actions such as receipts: the caller
// must be elevated or scoped to at least one warehouse.
func RequireOperator(p Principal) error {
	if p.ID == 0 {
		return shared.AccessDenied("access: unauthenticated principal")
	}
	if p.IsElevated() || (p.IsScoped() && len(p.WarehouseScope) > 0) {
		return nil
	}
	return shared.AccessDenied("access: role %q may not record customer transactions", p.Role)
}
