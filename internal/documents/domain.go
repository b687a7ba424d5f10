// Package documents implements the transactional document lifecycle shared by
// goods receipts, dispatches, transfers, sales invoices, sales returns,
// receipts and stock adjustments.
package documents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Family identifies a document type.
type Family string

const (
	FamilyGRN          Family = "GRN"
	FamilyDispatch     Family = "DISPATCH"
	FamilyTransfer     Family = "TRANSFER"
	FamilySalesInvoice Family = "SALES_INVOICE"
	FamilySalesReturn  Family = "SALES_RETURN"
	FamilyReceipt      Family = "RECEIPT"
	FamilyAdjustment   Family = "ADJUSTMENT"
)

var familyPrefixes = map[Family]string{
	FamilyGRN:          "GRN",
	FamilyDispatch:     "DSP",
	FamilyTransfer:     "TRF",
	FamilySalesInvoice: "INV",
	FamilySalesReturn:  "SRN",
	FamilyReceipt:      "RCP",
	FamilyAdjustment:   "ADJ",
}

// FormatNumber renders the human readable sequence number of a document.
func FormatNumber(f Family, seq int64) string {
	return fmt.Sprintf("%s-%06d", familyPrefixes[f], seq)
}

// Status is the lifecycle state of a document.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusApproved  Status = "APPROVED"
	StatusCancelled Status = "CANCELLED"
)

// PaymentMode records how money changed hands.
type PaymentMode string

const (
	PaymentCash   PaymentMode = "CASH"
	PaymentBank   PaymentMode = "BANK"
	PaymentCard   PaymentMode = "CARD"
	PaymentUPI    PaymentMode = "UPI"
	PaymentCheque PaymentMode = "CHEQUE"
	PaymentCredit PaymentMode = "CREDIT"
)

func (m PaymentMode) valid() bool {
	switch m {
	case PaymentCash, PaymentBank, PaymentCard, PaymentUPI, PaymentCheque, PaymentCredit:
		return true
	}
	return false
}

// Document is the header and lines of any family. Fields a family does not
// use stay at their zero value.
type Document struct {
	ID              int64       `json:"id"`
	UID             uuid.UUID   `json:"uid"`
	Family          Family      `json:"family"`
	Number          string      `json:"number"`
	Status          Status      `json:"status"`
	WarehouseID     int64       `json:"warehouseId,omitempty"`
	DestWarehouseID int64       `json:"destWarehouseId,omitempty"`
	CustomerID      int64       `json:"customerId,omitempty"`
	InvoiceID       int64       `json:"invoiceId,omitempty"`
	Party           string      `json:"party,omitempty"`
	Remarks         string      `json:"remarks,omitempty"`
	PaymentMode     PaymentMode `json:"paymentMode,omitempty"`

	Amount        decimal.Decimal `json:"amount"`
	SubTotal      decimal.Decimal `json:"subTotal"`
	DiscountTotal decimal.Decimal `json:"discountTotal"`
	TaxableTotal  decimal.Decimal `json:"taxableTotal"`
	TaxTotal      decimal.Decimal `json:"taxTotal"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	DueAmount     decimal.Decimal `json:"dueAmount"`

	Lines []Line `json:"lines"`

	CreatedBy   int64      `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	ApprovedBy  int64      `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	CancelledBy int64      `json:"cancelledBy,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// Line is one item of a document.
type Line struct {
	ID             int64           `json:"id"`
	LineNo         int             `json:"lineNo"`
	ProductID      int64           `json:"productId"`
	Quantity       int64           `json:"quantity"`
	Rate           decimal.Decimal `json:"rate"`
	Discount       decimal.Decimal `json:"discount"`
	TaxPercent     decimal.Decimal `json:"taxPercent"`
	TaxableAmount  decimal.Decimal `json:"taxableAmount"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
	TargetQuantity int64           `json:"targetQuantity,omitempty"`
	// PackingType and PackSize are descriptive only; quantities are always
	// whole pieces.
	PackingType string `json:"packingType,omitempty"`
	PackSize    int64  `json:"packSize,omitempty"`
	Note        string `json:"note,omitempty"`
}

// CreateInput carries the header and lines of a new document.
type CreateInput struct {
	WarehouseID     int64
	DestWarehouseID int64
	CustomerID      int64
	InvoiceID       int64
	Party           string
	Remarks         string
	PaymentMode     PaymentMode
	Amount          decimal.Decimal
	Lines           []LineInput
	IdempotencyKey  string
}

// LineInput is a requested line.
type LineInput struct {
	ProductID      int64
	Quantity       int64
	Rate           decimal.Decimal
	Discount       decimal.Decimal
	TaxPercent     decimal.Decimal
	TargetQuantity int64
	PackingType    string
	PackSize       int64
	Note           string
}

// ListFilter narrows document listings.
type ListFilter struct {
	Family       Family
	Status       Status
	WarehouseIDs []int64
	CustomerID   int64
	InvoiceID    int64
	Limit        int
	Offset       int
}

// AdjustInput sets a product's quantity in a warehouse.
type AdjustInput struct {
	WarehouseID int64
	ProductID   int64
	NewQuantity int64
	Notes       string
}

// AdjustResult reports the effect of an adjustment.
type AdjustResult struct {
	DocumentID       int64  `json:"documentId"`
	Number           string `json:"number"`
	PreviousQuantity int64  `json:"previousQuantity"`
	NewQuantity      int64  `json:"newQuantity"`
}
