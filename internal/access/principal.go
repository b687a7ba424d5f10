// Package access resolves who is acting and which warehouses they may touch.
package access

import (
	"context"
	"slices"
)

// Role names a principal's authorization profile.
type Role string

const (
	RoleSuperAdmin       Role = "SUPER_ADMIN"
	RoleAdmin            Role = "ADMIN"
	RoleWarehouseManager Role = "WAREHOUSE_MANAGER"
	RoleSalesStaff       Role = "SALES_STAFF"
)

// Principal is the authenticated caller passed explicitly to every core operation.
type Principal struct {
	ID             int64   `json:"id"`
	Role           Role    `json:"role"`
	WarehouseScope []int64 `json:"warehouseScope"`
}

// IsElevated reports whether the role bypasses warehouse scoping.
func (p Principal) IsElevated() bool {
	return p.Role == RoleSuperAdmin || p.Role == RoleAdmin
}

// IsScoped reports whether the role is limited to an assigned warehouse set.
func (p Principal) IsScoped() bool {
	return p.Role == RoleWarehouseManager || p.Role == RoleSalesStaff
}

func (p Principal) hasWarehouse(id int64) bool {
	return slices.Contains(p.WarehouseScope, id)
}

type principalContextKey struct{}

// ContextWithPrincipal stores the request principal. Only the HTTP boundary
// reads it back; services receive the principal as an argument.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal placed by Authenticate.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
