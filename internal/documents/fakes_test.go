package documents

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

type memoryState struct {
	docs      map[int64]Document
	levels    map[inventory.Key]int64
	movements []inventory.Movement
	entries   []ledger.Entry
	seq       map[Family]int64
	nextID    int64
}

func (s memoryState) clone() memoryState {
	docs := make(map[int64]Document, len(s.docs))
	for id, d := range s.docs {
		d.Lines = slices.Clone(d.Lines)
		docs[id] = d
	}
	return memoryState{
		docs:      docs,
		levels:    maps.Clone(s.levels),
		movements: slices.Clone(s.movements),
		entries:   slices.Clone(s.entries),
		seq:       maps.Clone(s.seq),
		nextID:    s.nextID,
	}
}

// memoryRepo serialises transactions and restores a snapshot when fn fails.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
	// failEntries makes every ledger insert fail.
	failEntries error
	// locked records LockLevel calls in order.
	locked []inventory.Key
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		docs:   make(map[int64]Document),
		levels: make(map[inventory.Key]int64),
		seq:    make(map[Family]int64),
	}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetDocument(_ context.Context, id int64) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc(id)
}

func (r *memoryRepo) doc(id int64) (Document, error) {
	d, ok := r.state.docs[id]
	if !ok {
		return Document{}, shared.NotFound("document %d not found", id)
	}
	d.Lines = slices.Clone(d.Lines)
	return d, nil
}

func (r *memoryRepo) ListDocuments(_ context.Context, f ListFilter) ([]Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, d := range r.state.docs {
		if d.Family != f.Family || (f.Status != "" && d.Status != f.Status) {
			continue
		}
		if len(f.WarehouseIDs) > 0 && !slices.Contains(f.WarehouseIDs, d.WarehouseID) && !slices.Contains(f.WarehouseIDs, d.DestWarehouseID) {
			continue
		}
		if f.CustomerID != 0 && d.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Document) int { return int(b.ID - a.ID) })
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	end := min(f.Offset+f.Limit, len(out))
	return out[f.Offset:end], total, nil
}

func (r *memoryRepo) quantity(w, p int64) int64 {
	return r.state.levels[inventory.Key{WarehouseID: w, ProductID: p}]
}

func (r *memoryRepo) movementsOf(docID int64) []inventory.Movement {
	var out []inventory.Movement
	for _, m := range r.state.movements {
		if m.DocumentID == docID {
			out = append(out, m)
		}
	}
	return out
}

func (r *memoryRepo) entriesOf(customerID int64) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range r.state.entries {
		if e.CustomerID == customerID {
			out = append(out, e)
		}
	}
	return out
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) id() int64 {
	t.repo.state.nextID++
	return t.repo.state.nextID
}

func (t *memoryTx) LockLevel(_ context.Context, w, p int64) (inventory.StockLevel, error) {
	k := inventory.Key{WarehouseID: w, ProductID: p}
	t.repo.locked = append(t.repo.locked, k)
	qty, ok := t.repo.state.levels[k]
	if !ok {
		t.repo.state.levels[k] = 0
	}
	return inventory.StockLevel{WarehouseID: w, ProductID: p, Quantity: qty}, nil
}

func (t *memoryTx) SaveLevel(_ context.Context, level inventory.StockLevel) error {
	t.repo.state.levels[inventory.Key{WarehouseID: level.WarehouseID, ProductID: level.ProductID}] = level.Quantity
	return nil
}

func (t *memoryTx) InsertMovement(_ context.Context, m inventory.Movement) (inventory.Movement, error) {
	m.ID = t.id()
	t.repo.state.movements = append(t.repo.state.movements, m)
	return m, nil
}

func (t *memoryTx) LockCustomer(context.Context, int64) error { return nil }

func (t *memoryTx) LastBalance(_ context.Context, customerID int64) (decimal.Decimal, error) {
	entries := t.repo.entriesOf(customerID)
	if len(entries) == 0 {
		return decimal.Zero, nil
	}
	return entries[len(entries)-1].BalanceAfter, nil
}

func (t *memoryTx) InsertEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if t.repo.failEntries != nil {
		return ledger.Entry{}, t.repo.failEntries
	}
	e.ID = t.id()
	t.repo.state.entries = append(t.repo.state.entries, e)
	return e, nil
}

func (t *memoryTx) NextSequence(_ context.Context, f Family) (int64, error) {
	t.repo.state.seq[f]++
	return t.repo.state.seq[f], nil
}

func (t *memoryTx) InsertDocument(_ context.Context, doc Document) (Document, error) {
	doc.ID = t.id()
	for i := range doc.Lines {
		doc.Lines[i].ID = t.id()
	}
	stored := doc
	stored.Lines = slices.Clone(doc.Lines)
	t.repo.state.docs[doc.ID] = stored
	return doc, nil
}

func (t *memoryTx) GetDocumentForUpdate(_ context.Context, id int64) (Document, error) {
	return t.repo.doc(id)
}

func (t *memoryTx) UpdateDocument(_ context.Context, doc Document) error {
	stored, ok := t.repo.state.docs[doc.ID]
	if !ok {
		return shared.NotFound("document %d not found", doc.ID)
	}
	stored.Status = doc.Status
	stored.GrandTotal, stored.PaidAmount, stored.DueAmount = doc.GrandTotal, doc.PaidAmount, doc.DueAmount
	stored.ApprovedBy, stored.ApprovedAt = doc.ApprovedBy, doc.ApprovedAt
	stored.CancelledBy, stored.CancelledAt = doc.CancelledBy, doc.CancelledAt
	t.repo.state.docs[doc.ID] = stored
	return nil
}

func (t *memoryTx) ApprovedReferences(_ context.Context, invoiceID int64) (int, int, error) {
	var receipts, returns int
	for _, d := range t.repo.state.docs {
		if d.InvoiceID != invoiceID || d.Status != StatusApproved {
			continue
		}
		switch d.Family {
		case FamilyReceipt:
			receipts++
		case FamilySalesReturn:
			returns++
		}
	}
	return receipts, returns, nil
}

func (t *memoryTx) ReturnedQuantities(_ context.Context, invoiceID int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, d := range t.repo.state.docs {
		if d.InvoiceID != invoiceID || d.Family != FamilySalesReturn || d.Status != StatusApproved {
			continue
		}
		for _, l := range d.Lines {
			out[l.ProductID] += l.Quantity
		}
	}
	return out, nil
}

type memoryLookup struct {
	products   map[int64]masterdata.Product
	warehouses map[int64]masterdata.Warehouse
	customers  map[int64]masterdata.Customer
}

func (l memoryLookup) GetProduct(_ context.Context, id int64) (masterdata.Product, error) {
	p, ok := l.products[id]
	if !ok {
		return masterdata.Product{}, shared.NotFound("product %d not found", id)
	}
	return p, nil
}

func (l memoryLookup) GetWarehouse(_ context.Context, id int64) (masterdata.Warehouse, error) {
	w, ok := l.warehouses[id]
	if !ok {
		return masterdata.Warehouse{}, shared.NotFound("warehouse %d not found", id)
	}
	return w, nil
}

func (l memoryLookup) GetCustomer(_ context.Context, id int64) (masterdata.Customer, error) {
	c, ok := l.customers[id]
	if !ok {
		return masterdata.Customer{}, shared.NotFound("customer %d not found", id)
	}
	return c, nil
}

type memoryApprovals struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (a *memoryApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	log.ID = int64(len(a.logs) + 1)
	a.logs = append(a.logs, log)
	return nil
}

func (a *memoryApprovals) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range a.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type transitionCall struct {
	family, action string
	failed         bool
}

type recordingObserver struct {
	calls []transitionCall
}

func (o *recordingObserver) ObserveTransition(family, action string, err error) {
	o.calls = append(o.calls, transitionCall{family: family, action: action, failed: err != nil})
}

const (
	w1        int64 = 1
	w2        int64 = 2
	wInactive int64 = 3
	productX  int64 = 10
	productY  int64 = 11
	custC     int64 = 100
	custD     int64 = 101
)

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	approvals *memoryApprovals
	idem      *memoryIdempotency
	observer  *recordingObserver
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	lookup := memoryLookup{
		products: map[int64]masterdata.Product{
			productX: {ID: productX, SKU: "X", Name: "Product X", Unit: masterdata.BaseUnit},
			productY: {ID: productY, SKU: "Y", Name: "Product Y", Unit: masterdata.BaseUnit},
		},
		warehouses: map[int64]masterdata.Warehouse{
			w1:        {ID: w1, Code: "W1", Active: true},
			w2:        {ID: w2, Code: "W2", Active: true},
			wInactive: {ID: wInactive, Code: "W3", Active: false},
		},
		customers: map[int64]masterdata.Customer{
			custC: {ID: custC, Code: "C", Name: "Customer C"},
			custD: {ID: custD, Code: "D", Name: "Customer D"},
		},
	}
	approvals := &memoryApprovals{}
	idem := &memoryIdempotency{keys: make(map[string]bool)}
	observer := &recordingObserver{}
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, lookup, approvals, nil, idem, ServiceConfig{
		Observer: observer,
		Now:      func() time.Time { return clock },
	})
	return &fixture{svc: svc, repo: repo, approvals: approvals, idem: idem, observer: observer}
}
