// Package inventory is the stock ledger: per warehouse/product quantities and
// the append-only movement log they are derived from.
package inventory

import (
	"cmp"
	"errors"
	"slices"
	"time"
)

// Direction of a stock movement.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// TxType tags the business event behind a movement.
type TxType string

const (
	TxGRN                TxType = "GRN"
	TxDispatch           TxType = "DISPATCH"
	TxTransferOut        TxType = "TRANSFER_OUT"
	TxTransferIn         TxType = "TRANSFER_IN"
	TxSale               TxType = "SALE"
	TxSaleReturn         TxType = "SALE_RETURN"
	TxAdjustmentPositive TxType = "ADJUSTMENT_POSITIVE"
	TxAdjustmentNegative TxType = "ADJUSTMENT_NEGATIVE"
	// TxSaleCancel restocks lines of a cancelled invoice.
	TxSaleCancel TxType = "SALE_CANCEL"
	// TxSaleReturnCancel takes back stock restocked by a cancelled return.
	TxSaleReturnCancel TxType = "SALE_RETURN_CANCEL"
)

var txDirections = map[TxType]Direction{
	TxGRN:                DirectionIn,
	TxDispatch:           DirectionOut,
	TxTransferOut:        DirectionOut,
	TxTransferIn:         DirectionIn,
	TxSale:               DirectionOut,
	TxSaleReturn:         DirectionIn,
	TxAdjustmentPositive: DirectionIn,
	TxAdjustmentNegative: DirectionOut,
	TxSaleCancel:         DirectionIn,
	TxSaleReturnCancel:   DirectionOut,
}

// Direction returns the fixed direction of the tag.
func (t TxType) Direction() (Direction, bool) {
	d, ok := txDirections[t]
	return d, ok
}

// StockLevel is the cached quantity of one product in one warehouse.
type StockLevel struct {
	WarehouseID int64     `json:"warehouseId"`
	ProductID   int64     `json:"productId"`
	Quantity    int64     `json:"quantity"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Movement is an immutable stock change record.
type Movement struct {
	ID          int64     `json:"id"`
	WarehouseID int64     `json:"warehouseId"`
	ProductID   int64     `json:"productId"`
	Direction   Direction `json:"direction"`
	Quantity    int64     `json:"quantity"`
	TxType      TxType    `json:"txType"`
	DocumentID  int64     `json:"documentId"`
	CreatedBy   int64     `json:"createdBy"`
	ApprovedBy  int64     `json:"approvedBy,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Signed returns the quantity with the movement's sign applied.
func (m Movement) Signed() int64 {
	if m.Direction == DirectionOut {
		return -m.Quantity
	}
	return m.Quantity
}

// MovementInput describes a movement to apply.
type MovementInput struct {
	WarehouseID int64
	ProductID   int64
	TxType      TxType
	Quantity    int64
	DocumentID  int64
	CreatedBy   int64
	ApprovedBy  int64
	Note        string
	At          time.Time
}

// Key identifies a stock level row.
type Key struct {
	WarehouseID int64
	ProductID   int64
}

// SortKeys orders keys by warehouse then product, the lock acquisition order
// every writer follows.
func SortKeys(keys []Key) {
	slices.SortFunc(keys, func(a, b Key) int {
		if c := cmp.Compare(a.WarehouseID, b.WarehouseID); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
}

// Drift reports a stock level that disagrees with its movement log.
type Drift struct {
	WarehouseID int64 `json:"warehouseId"`
	ProductID   int64 `json:"productId"`
	Cached      int64 `json:"cached"`
	Replayed    int64 `json:"replayed"`
}

// ErrUnknownTxType indicates a movement tag without a direction.
var ErrUnknownTxType = errors.New("inventory: unknown transaction type")
