package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Store reads report data. Implementations must give each call a consistent
// view of the ledgers.
type Store interface {
	StockLevels(ctx context.Context, filter StockFilter) ([]StockRow, int, error)
	// MovementTail returns the last limit movements in chronological order and
	// the level's quantity before the first of them.
	MovementTail(ctx context.Context, warehouseID, productID int64, limit int) (int64, []inventory.Movement, error)
	Outstanding(ctx context.Context, limit, offset int) ([]OutstandingRow, int, error)
	// StatementEntries returns the balance before from and the entries in [from, end).
	StatementEntries(ctx context.Context, customerID int64, from, end time.Time) (decimal.Decimal, []ledger.Entry, error)
	Collections(ctx context.Context, from, end time.Time) ([]CollectionRow, error)
}

// QuantityReader returns a single cached stock level.
type QuantityReader interface {
	Quantity(ctx context.Context, warehouseID, productID int64) (int64, error)
}

// CustomerLookup resolves customers referenced by reports.
type CustomerLookup interface {
	GetCustomer(ctx context.Context, id int64) (masterdata.Customer, error)
}

const (
	defaultMovementLimit = 100
	maxMovementLimit     = 1000
)

// Service computes report rollups. Identical concurrent reads share one
// store round trip.
type Service struct {
	store     Store
	levels    QuantityReader
	customers CustomerLookup
	logger    *slog.Logger
	now       func() time.Time
	group     singleflight.Group
}

// NewService constructs the reporting service.
func NewService(store Store, levels QuantityReader, customers CustomerLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, levels: levels, customers: customers, logger: logger, now: time.Now}
}

// Period parses an inclusive date range relative to the service clock.
func (s *Service) Period(from, to string) (Period, error) {
	return ParsePeriod(from, to, s.now())
}

// sharedCallTimeout bounds a coalesced store call, which outlives the
// caller that started it.
const sharedCallTimeout = 30 * time.Second

// coalesce runs fn once per key for concurrent callers. The shared call keeps
// the first caller's values but not its cancellation; each caller still stops
// waiting when its own ctx is done.
func coalesce[T any](ctx context.Context, s *Service, key string, fn func(context.Context) (T, error)) (T, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

type page[T any] struct {
	items []T
	total int
}

// scopeWarehouses resolves which warehouses a principal may read stock of.
// A nil result means no restriction.
func scopeWarehouses(p access.Principal, requested int64) ([]int64, error) {
	if requested != 0 {
		return nil, access.CheckWarehouseAccess(p, requested)
	}
	if err := access.RequireOperator(p); err != nil {
		return nil, err
	}
	if p.IsElevated() {
		return nil, nil
	}
	return slices.Clone(p.WarehouseScope), nil
}

// StockOnHand lists cached stock levels visible to p.
func (s *Service) StockOnHand(ctx context.Context, p access.Principal, filter StockFilter, req shared.PageRequest) ([]StockRow, shared.Pagination, error) {
	scope, err := scopeWarehouses(p, filter.WarehouseID)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.WarehouseIDs = scope
	filter.Limit, filter.Offset = req.Limit(), req.Offset()
	key := fmt.Sprintf("stock:%d:%d:%s:%d:%d", filter.WarehouseID, filter.ProductID, joinIDs(scope), filter.Limit, filter.Offset)
	res, err := coalesce(ctx, s, key, func(ctx context.Context) (page[StockRow], error) {
		rows, total, err := s.store.StockLevels(ctx, filter)
		return page[StockRow]{rows, total}, err
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return res.items, shared.NewPagination(req.Page, req.PerPage, res.total), nil
}

// Quantity returns one level's cached quantity, zero when never stocked.
func (s *Service) Quantity(ctx context.Context, p access.Principal, warehouseID, productID int64) (inventory.StockLevel, error) {
	if warehouseID <= 0 || productID <= 0 {
		return inventory.StockLevel{}, shared.Validation("warehouseId and productId are required")
	}
	if err := access.CheckWarehouseAccess(p, warehouseID); err != nil {
		return inventory.StockLevel{}, err
	}
	qty, err := s.levels.Quantity(ctx, warehouseID, productID)
	if err != nil {
		return inventory.StockLevel{}, err
	}
	return inventory.StockLevel{WarehouseID: warehouseID, ProductID: productID, Quantity: qty}, nil
}

// Movements returns recent movements of one level with running quantities.
func (s *Service) Movements(ctx context.Context, p access.Principal, warehouseID, productID int64, limit int) (MovementHistory, error) {
	if warehouseID <= 0 || productID <= 0 {
		return MovementHistory{}, shared.Validation("warehouseId and productId are required")
	}
	if err := access.CheckWarehouseAccess(p, warehouseID); err != nil {
		return MovementHistory{}, err
	}
	if limit <= 0 {
		limit = defaultMovementLimit
	}
	limit = min(limit, maxMovementLimit)
	key := fmt.Sprintf("movements:%d:%d:%d", warehouseID, productID, limit)
	return coalesce(ctx, s, key, func(ctx context.Context) (MovementHistory, error) {
		opening, moves, err := s.store.MovementTail(ctx, warehouseID, productID, limit)
		if err != nil {
			return MovementHistory{}, err
		}
		return runningHistory(warehouseID, productID, opening, moves), nil
	})
}

func runningHistory(warehouseID, productID, opening int64, moves []inventory.Movement) MovementHistory {
	h := MovementHistory{WarehouseID: warehouseID, ProductID: productID, OpeningQuantity: opening, Movements: make([]MovementRow, 0, len(moves))}
	running := opening
	for _, m := range moves {
		running += m.Signed()
		h.Movements = append(h.Movements, MovementRow{Movement: m, RunningQuantity: running})
	}
	return h
}

// Outstanding lists customers with a non-zero balance.
func (s *Service) Outstanding(ctx context.Context, p access.Principal, req shared.PageRequest) ([]OutstandingRow, shared.Pagination, error) {
	if err := access.RequireOperator(p); err != nil {
		return nil, shared.Pagination{}, err
	}
	limit, offset := req.Limit(), req.Offset()
	res, err := coalesce(ctx, s, fmt.Sprintf("outstanding:%d:%d", limit, offset), func(ctx context.Context) (page[OutstandingRow], error) {
		rows, total, err := s.store.Outstanding(ctx, limit, offset)
		return page[OutstandingRow]{rows, total}, err
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return res.items, shared.NewPagination(req.Page, req.PerPage, res.total), nil
}

// Statement builds a customer statement for the period.
func (s *Service) Statement(ctx context.Context, p access.Principal, customerID int64, period Period, req shared.PageRequest) (Statement, error) {
	if err := access.RequireOperator(p); err != nil {
		return Statement{}, err
	}
	if _, err := s.customers.GetCustomer(ctx, customerID); err != nil {
		return Statement{}, err
	}
	key := fmt.Sprintf("statement:%d:%s:%s", customerID, period.From.Format(DateLayout), period.To.Format(DateLayout))
	full, err := coalesce(ctx, s, key, func(ctx context.Context) (Statement, error) {
		opening, entries, err := s.store.StatementEntries(ctx, customerID, period.From, period.End())
		if err != nil {
			return Statement{}, err
		}
		return buildStatement(customerID, period, opening, entries), nil
	})
	if err != nil {
		return Statement{}, err
	}
	full.Entries, full.Pagination = shared.Slice(full.Entries, req)
	return full, nil
}

func buildStatement(customerID int64, period Period, opening decimal.Decimal, entries []ledger.Entry) Statement {
	st := Statement{
		CustomerID: customerID,
		From:       period.From.Format(DateLayout),
		To:         period.To.Format(DateLayout),
		Opening:    opening.Round(2),
		Debit:      decimal.Zero,
		Credit:     decimal.Zero,
		Entries:    entries,
	}
	for _, e := range entries {
		st.Debit = st.Debit.Add(e.Debit)
		st.Credit = st.Credit.Add(e.Credit)
	}
	st.Debit, st.Credit = st.Debit.Round(2), st.Credit.Round(2)
	st.Closing = st.Opening.Add(st.Debit).Sub(st.Credit).Round(2)
	if st.Entries == nil {
		st.Entries = []ledger.Entry{}
	}
	return st
}

// Collections groups approved receipts by day and payment mode.
func (s *Service) Collections(ctx context.Context, p access.Principal, period Period) (Collections, error) {
	if err := access.RequireOperator(p); err != nil {
		return Collections{}, err
	}
	key := fmt.Sprintf("collections:%s:%s", period.From.Format(DateLayout), period.To.Format(DateLayout))
	return coalesce(ctx, s, key, func(ctx context.Context) (Collections, error) {
		rows, err := s.store.Collections(ctx, period.From, period.End())
		if err != nil {
			return Collections{}, err
		}
		return groupCollections(period, rows), nil
	})
}

func groupCollections(period Period, rows []CollectionRow) Collections {
	out := Collections{
		From:  period.From.Format(DateLayout),
		To:    period.To.Format(DateLayout),
		Days:  []CollectionDay{},
		Total: decimal.Zero,
	}
	slices.SortStableFunc(rows, func(a, b CollectionRow) int {
		if c := a.Day.Compare(b.Day); c != 0 {
			return c
		}
		return strings.Compare(a.PaymentMode, b.PaymentMode)
	})
	for _, r := range rows {
		day := r.Day.Format(DateLayout)
		if n := len(out.Days); n == 0 || out.Days[n-1].Day != day {
			out.Days = append(out.Days, CollectionDay{Day: day, Total: decimal.Zero})
		}
		d := &out.Days[len(out.Days)-1]
		amount := r.Amount.Round(2)
		d.Modes = append(d.Modes, ModeTotal{PaymentMode: r.PaymentMode, Amount: amount, Count: r.Count})
		d.Total = d.Total.Add(amount)
		out.Total = out.Total.Add(amount)
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
