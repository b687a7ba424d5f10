// Package reporting serves read-only rollups over the stock and customer
// ledgers.
package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// DateLayout is the calendar date format accepted by report filters.
const DateLayout = "2006-01-02"

// StockFilter narrows stock-on-hand listings. Zero values mean "all".
type StockFilter struct {
	WarehouseID  int64
	ProductID    int64
	WarehouseIDs []int64
	Limit        int
	Offset       int
}

// StockRow is one stock level with its master data labels.
type StockRow struct {
	WarehouseID   int64     `json:"warehouseId"`
	WarehouseCode string    `json:"warehouseCode"`
	ProductID     int64     `json:"productId"`
	SKU           string    `json:"sku"`
	ProductName   string    `json:"productName"`
	Quantity      int64     `json:"quantity"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MovementRow is a movement with the level's quantity after it.
type MovementRow struct {
	inventory.Movement
	RunningQuantity int64 `json:"runningQuantity"`
}

// MovementHistory is the tail of a level's movement log.
type MovementHistory struct {
	WarehouseID     int64         `json:"warehouseId"`
	ProductID       int64         `json:"productId"`
	OpeningQuantity int64         `json:"openingQuantity"`
	Movements       []MovementRow `json:"movements"`
}

// OutstandingRow is a customer with a non-zero ledger balance.
type OutstandingRow struct {
	CustomerID   int64           `json:"customerId"`
	CustomerCode string          `json:"customerCode"`
	CustomerName string          `json:"customerName"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	Balance      decimal.Decimal `json:"balance"`
}

// Statement is a customer's ledger activity over a period.
type Statement struct {
	CustomerID int64             `json:"customerId"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Opening    decimal.Decimal   `json:"openingBalance"`
	Debit      decimal.Decimal   `json:"periodDebit"`
	Credit     decimal.Decimal   `json:"periodCredit"`
	Closing    decimal.Decimal   `json:"closingBalance"`
	Entries    []ledger.Entry    `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

// CollectionRow is the store-level aggregate of approved receipts.
type CollectionRow struct {
	Day         time.Time
	PaymentMode string
	Amount      decimal.Decimal
	Count       int
}

// ModeTotal is one payment mode's receipts on a day.
type ModeTotal struct {
	PaymentMode string          `json:"paymentMode"`
	Amount      decimal.Decimal `json:"amount"`
	Count       int             `json:"count"`
}

// CollectionDay groups a day's receipts by payment mode.
type CollectionDay struct {
	Day   string          `json:"day"`
	Modes []ModeTotal     `json:"modes"`
	Total decimal.Decimal `json:"total"`
}

// Collections is the daily collections report.
type Collections struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Days  []CollectionDay `json:"days"`
	Total decimal.Decimal `json:"total"`
}

// Period is an inclusive calendar date range.
type Period struct {
	From time.Time
	To   time.Time
}

// ParsePeriod reads from/to dates, defaulting to the last 30 days ending today.
func ParsePeriod(from, to string, now time.Time) (Period, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	p := Period{From: today.AddDate(0, 0, -29), To: today}
	var err error
	if from != "" {
		if p.From, err = time.Parse(DateLayout, from); err != nil {
			return Period{}, shared.Validation("from: expected YYYY-MM-DD")
		}
	}
	if to != "" {
		if p.To, err = time.Parse(DateLayout, to); err != nil {
			return Period{}, shared.Validation("to: expected YYYY-MM-DD")
		}
	}
	if p.To.Before(p.From) {
		return Period{}, shared.Validation("to: must not be before from")
	}
	return p, nil
}

// End returns the exclusive upper bound of the period.
func (p Period) End() time.Time {
	return p.To.AddDate(0, 0, 1)
}
