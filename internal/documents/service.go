package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	"github.com/odyssey-erp/odyssey-stock/internal/ledger"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Repository describes document persistence used by Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error)
}

// TxRepository is the transaction-scoped storage of documents and both ledgers.
type TxRepository interface {
	inventory.TxStore
	ledger.TxStore
	NextSequence(ctx context.Context, family Family) (int64, error)
	InsertDocument(ctx context.Context, doc Document) (Document, error)
	GetDocumentForUpdate(ctx context.Context, id int64) (Document, error)
	UpdateDocument(ctx context.Context, doc Document) error
	// ApprovedReferences counts approved receipts and returns of an invoice.
	ApprovedReferences(ctx context.Context, invoiceID int64) (receipts, returns int, err error)
	// ReturnedQuantities sums approved return quantities per product of an invoice.
	ReturnedQuantities(ctx context.Context, invoiceID int64) (map[int64]int64, error)
}

// Lookup resolves master data referenced by documents.
type Lookup interface {
	GetProduct(ctx context.Context, id int64) (masterdata.Product, error)
	GetWarehouse(ctx context.Context, id int64) (masterdata.Warehouse, error)
	GetCustomer(ctx context.Context, id int64) (masterdata.Customer, error)
}

// ApprovalPort persists the approval trail.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards document creation against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// TransitionObserver is notified of every lifecycle transition attempt.
type TransitionObserver interface {
	ObserveTransition(family, action string, err error)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Logger   *slog.Logger
	Observer TransitionObserver
	Now      func() time.Time
}

// Service runs the document lifecycle.
type Service struct {
	repo        Repository
	lookup      Lookup
	approvals   ApprovalPort
	audit       AuditPort
	idempotency IdempotencyPort
	observer    TransitionObserver
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the document service.
func NewService(repo Repository, lookup Lookup, approvals ApprovalPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig) *Service {
	svc := &Service{
		repo:        repo,
		lookup:      lookup,
		approvals:   approvals,
		audit:       audit,
		idempotency: idem,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

const (
	actionCreate  = "create"
	actionApprove = "approve"
	actionCancel  = "cancel"
)

// Create validates and stores a DRAFT document. No stock or ledger effect
// happens until approval.
func (s *Service) Create(ctx context.Context, p access.Principal, family Family, input CreateInput) (doc Document, err error) {
	defer func() { s.observe(family, actionCreate, err) }()
	strat, ok := strategyFor(family)
	if !ok {
		return Document{}, shared.Validation("unknown document family %q", family)
	}
	doc, err = s.build(ctx, p, strat, input)
	if err != nil {
		return Document{}, err
	}

	key := ""
	if input.IdempotencyKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("%s:%s", family, input.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, "documents"); err != nil {
			return Document{}, err
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := s.insert(ctx, tx, doc)
		if err != nil {
			return err
		}
		doc = created
		return nil
	})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Document{}, err
	}
	s.recordAudit(ctx, p, shared.AuditDocumentCreate, doc)
	return doc, nil
}

// build runs generic and family validation and returns the unsaved document.
func (s *Service) build(ctx context.Context, p access.Principal, strat strategy, input CreateInput) (Document, error) {
	if err := strat.authorize(p); err != nil {
		return Document{}, err
	}
	doc := Document{
		UID:             uuid.New(),
		Family:          strat.family(),
		Status:          StatusDraft,
		WarehouseID:     input.WarehouseID,
		DestWarehouseID: input.DestWarehouseID,
		CustomerID:      input.CustomerID,
		InvoiceID:       input.InvoiceID,
		Party:           input.Party,
		Remarks:         input.Remarks,
		PaymentMode:     input.PaymentMode,
		Amount:          input.Amount,
		CreatedBy:       p.ID,
		CreatedAt:       s.now(),
	}
	for i, in := range input.Lines {
		doc.Lines = append(doc.Lines, Line{
			LineNo:         i + 1,
			ProductID:      in.ProductID,
			Quantity:       in.Quantity,
			Rate:           in.Rate,
			Discount:       in.Discount,
			TaxPercent:     in.TaxPercent,
			TargetQuantity: in.TargetQuantity,
			PackingType:    in.PackingType,
			PackSize:       in.PackSize,
			Note:           in.Note,
		})
	}
	if err := s.validateLines(ctx, strat.lines(), doc.Lines); err != nil {
		return Document{}, err
	}
	env := createEnv{lookup: s.lookup, repo: s.repo}
	if err := strat.prepare(ctx, env, &doc); err != nil {
		return Document{}, err
	}
	warehouses := strat.warehouses(doc)
	if err := s.validateWarehouses(ctx, warehouses); err != nil {
		return Document{}, err
	}
	if err := authorize(p, warehouses); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Service) insert(ctx context.Context, tx TxRepository, doc Document) (Document, error) {
	seq, err := tx.NextSequence(ctx, doc.Family)
	if err != nil {
		return Document{}, fmt.Errorf("documents: next sequence: %w", err)
	}
	doc.Number = FormatNumber(doc.Family, seq)
	created, err := tx.InsertDocument(ctx, doc)
	if err != nil {
		return Document{}, fmt.Errorf("documents: insert: %w", err)
	}
	return created, nil
}

func (s *Service) validateLines(ctx context.Context, rule lineRule, lines []Line) error {
	if rule == linesNone {
		if len(lines) > 0 {
			return shared.Validation("lines: not allowed for this document type")
		}
		return nil
	}
	if len(lines) == 0 {
		return shared.Validation("lines: at least one line is required")
	}
	for i, l := range lines {
		if l.ProductID <= 0 {
			return shared.Validation("lines[%d].productId: is required", i)
		}
		switch rule {
		case linesQuantity:
			if l.Quantity <= 0 {
				return shared.Validation("lines[%d].quantity: must be greater than 0", i)
			}
		case linesTarget:
			if l.TargetQuantity < 0 {
				return shared.Validation("lines[%d].targetQuantity: must not be negative", i)
			}
		}
		if l.PackSize < 0 {
			return shared.Validation("lines[%d].packSize: must not be negative", i)
		}
		if _, err := s.lookup.GetProduct(ctx, l.ProductID); err != nil {
			if shared.KindOf(err) == shared.KindNotFound {
				return shared.Validation("lines[%d].productId: product %d not found", i, l.ProductID)
			}
			return err
		}
	}
	return nil
}

// validateWarehouses requires every referenced warehouse to exist and be
// active at creation time.
func (s *Service) validateWarehouses(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		w, err := s.lookup.GetWarehouse(ctx, id)
		if err != nil {
			if shared.KindOf(err) == shared.KindNotFound {
				return shared.Validation("warehouse %d not found", id)
			}
			return err
		}
		if !w.Active {
			return shared.Validation("warehouse %s is inactive", w.Code)
		}
	}
	return nil
}

func authorize(p access.Principal, warehouses []int64) error {
	if len(warehouses) == 0 {
		return access.RequireOperator(p)
	}
	return access.CheckWarehouses(p, warehouses...)
}

// Approve applies a DRAFT document's stock and ledger effects and marks it
// APPROVED, all in one transaction.
func (s *Service) Approve(ctx context.Context, p access.Principal, family Family, id int64) (doc Document, err error) {
	defer func() { s.observe(family, actionApprove, err) }()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		approved, err := s.approveTx(ctx, tx, p, family, id)
		if err != nil {
			return err
		}
		doc = approved
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordApproval(ctx, p, shared.ApprovalApprove, doc)
	s.recordAudit(ctx, p, shared.AuditDocumentApprove, doc)
	return doc, nil
}

func (s *Service) approveTx(ctx context.Context, tx TxRepository, p access.Principal, family Family, id int64) (Document, error) {
	strat, ok := strategyFor(family)
	if !ok {
		return Document{}, shared.Validation("unknown document family %q", family)
	}
	return s.transition(ctx, tx, p, family, id, transition{
		from:      StatusDraft,
		to:        StatusApproved,
		check:     strat.check,
		movements: strat.movements,
		entries:   strat.entries,
		link:      strat.link,
		keys:      strat.stockKeys,
		scope:     strat.warehouses,
		permit:    strat.authorize,
	})
}

// Cancel reverses an APPROVED invoice, return or receipt.
func (s *Service) Cancel(ctx context.Context, p access.Principal, family Family, id int64) (doc Document, err error) {
	defer func() { s.observe(family, actionCancel, err) }()
	strat, ok := strategyFor(family)
	if !ok {
		return Document{}, shared.Validation("unknown document family %q", family)
	}
	c, ok := strat.(canceller)
	if !ok {
		return Document{}, shared.InvalidState("%s documents cannot be cancelled", family)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cancelled, err := s.transition(ctx, tx, p, family, id, transition{
			from:      StatusApproved,
			to:        StatusCancelled,
			check:     c.cancelCheck,
			movements: c.cancelMovements,
			entries:   c.cancelEntries,
			link:      c.unlink,
			keys:      strat.stockKeys,
			scope:     strat.warehouses,
			permit:    strat.authorize,
		})
		if err != nil {
			return err
		}
		doc = cancelled
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.recordApproval(ctx, p, shared.ApprovalCancel, doc)
	s.recordAudit(ctx, p, shared.AuditDocumentCancel, doc)
	return doc, nil
}

// transition describes one lifecycle step in terms of its effects.
type transition struct {
	from, to  Status
	check     func(context.Context, *run) error
	movements func(*run) []inventory.MovementInput
	entries   func(*run) []ledger.EntryInput
	link      func(context.Context, *run) error
	keys      func(Document) []inventory.Key
	scope     func(Document) []int64
	permit    func(access.Principal) error
}

// transition is the single approval routine shared by every family. Locks are
// taken in a fixed order: document, parent invoice, stock levels by
// (warehouse, product), customer ledger.
func (s *Service) transition(ctx context.Context, tx TxRepository, p access.Principal, family Family, id int64, t transition) (Document, error) {
	doc, err := tx.GetDocumentForUpdate(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Family != family {
		return Document{}, shared.NotFound("%s %d not found", family, id)
	}
	if doc.Status != t.from {
		return Document{}, shared.InvalidState("%s is %s; expected %s", doc.Number, doc.Status, t.from)
	}
	if err := t.permit(p); err != nil {
		return Document{}, err
	}
	if err := authorize(p, t.scope(doc)); err != nil {
		return Document{}, err
	}

	r := &run{tx: tx, doc: doc, actor: p, at: s.now(), onHand: make(map[inventory.Key]int64)}
	if err := t.check(ctx, r); err != nil {
		return Document{}, err
	}

	// Validation pass: lock and read every level in one sorted batch, then
	// make sure the outbound total per level is covered before anything is
	// written.
	if err := lockLevels(ctx, r, t.keys(doc)); err != nil {
		return Document{}, err
	}
	moves := t.movements(r)
	if err := requireLocked(r, moves); err != nil {
		return Document{}, err
	}
	if err := checkStock(r.onHand, moves); err != nil {
		return Document{}, err
	}

	// Mutation pass.
	for _, m := range moves {
		if _, _, err := inventory.ApplyMovement(ctx, tx, m); err != nil {
			return Document{}, err
		}
	}
	for _, e := range t.entries(r) {
		if _, err := ledger.AppendEntry(ctx, tx, e); err != nil {
			return Document{}, err
		}
	}
	if err := t.link(ctx, r); err != nil {
		return Document{}, err
	}

	at := r.at
	doc.Status = t.to
	switch t.to {
	case StatusApproved:
		doc.ApprovedBy, doc.ApprovedAt = p.ID, &at
	case StatusCancelled:
		doc.CancelledBy, doc.CancelledAt = p.ID, &at
	}
	if err := tx.UpdateDocument(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("documents: update status: %w", err)
	}
	return doc, nil
}

// lockLevels locks levels not yet held, in sorted order, and records their
// quantities.
func lockLevels(ctx context.Context, r *run, keys []inventory.Key) error {
	pending := make([]inventory.Key, 0, len(keys))
	seen := make(map[inventory.Key]bool, len(keys))
	for _, k := range keys {
		if _, held := r.onHand[k]; held || seen[k] {
			continue
		}
		seen[k] = true
		pending = append(pending, k)
	}
	inventory.SortKeys(pending)
	for _, k := range pending {
		level, err := r.tx.LockLevel(ctx, k.WarehouseID, k.ProductID)
		if err != nil {
			return fmt.Errorf("documents: lock stock level: %w", err)
		}
		r.onHand[k] = level.Quantity
	}
	return nil
}

// requireLocked fails when a movement targets a level outside the locked
// batch, which would break the global lock order.
func requireLocked(r *run, moves []inventory.MovementInput) error {
	for _, m := range moves {
		if _, held := r.onHand[inventory.Key{WarehouseID: m.WarehouseID, ProductID: m.ProductID}]; !held {
			return fmt.Errorf("documents: %s moves unlocked level (warehouse %d, product %d)", r.doc.Family, m.WarehouseID, m.ProductID)
		}
	}
	return nil
}

// checkStock fails when the outbound total of any level exceeds its on-hand
// quantity plus inbound movements applied earlier in the same batch.
func checkStock(onHand map[inventory.Key]int64, moves []inventory.MovementInput) error {
	projected := make(map[inventory.Key]int64, len(onHand))
	for k, q := range onHand {
		projected[k] = q
	}
	for _, m := range moves {
		k := inventory.Key{WarehouseID: m.WarehouseID, ProductID: m.ProductID}
		dir, ok := m.TxType.Direction()
		if !ok {
			return fmt.Errorf("%w: %q", inventory.ErrUnknownTxType, m.TxType)
		}
		if dir == inventory.DirectionIn {
			projected[k] += m.Quantity
			continue
		}
		if projected[k] < m.Quantity {
			return shared.InsufficientStock("insufficient stock for product %d in warehouse %d: on hand %d, required %d",
				m.ProductID, m.WarehouseID, projected[k], m.Quantity)
		}
		projected[k] -= m.Quantity
	}
	return nil
}

// AdjustStock creates and approves an adjustment setting one product's
// quantity, in a single transaction. Elevated roles only.
func (s *Service) AdjustStock(ctx context.Context, p access.Principal, input AdjustInput) (result AdjustResult, err error) {
	defer func() { s.observe(FamilyAdjustment, "adjust", err) }()
	if err := access.RequireElevated(p); err != nil {
		return AdjustResult{}, err
	}
	if input.NewQuantity < 0 {
		return AdjustResult{}, shared.Validation("newQuantity: must not be negative")
	}
	strat := strategies[FamilyAdjustment]
	doc, err := s.build(ctx, p, strat, CreateInput{
		WarehouseID: input.WarehouseID,
		Remarks:     input.Notes,
		Lines:       []LineInput{{ProductID: input.ProductID, TargetQuantity: input.NewQuantity}},
	})
	if err != nil {
		return AdjustResult{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := s.insert(ctx, tx, doc)
		if err != nil {
			return err
		}
		level, err := tx.LockLevel(ctx, input.WarehouseID, input.ProductID)
		if err != nil {
			return fmt.Errorf("documents: lock stock level: %w", err)
		}
		approved, err := s.approveTx(ctx, tx, p, FamilyAdjustment, created.ID)
		if err != nil {
			return err
		}
		doc = approved
		result = AdjustResult{
			DocumentID:       approved.ID,
			Number:           approved.Number,
			PreviousQuantity: level.Quantity,
			NewQuantity:      input.NewQuantity,
		}
		return nil
	})
	if err != nil {
		return AdjustResult{}, err
	}
	s.recordApproval(ctx, p, shared.ApprovalApprove, doc)
	s.recordAudit(ctx, p, shared.AuditStockAdjust, doc)
	return result, nil
}

// Get returns a document the principal may see.
func (s *Service) Get(ctx context.Context, p access.Principal, family Family, id int64) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if doc.Family != family {
		return Document{}, shared.NotFound("%s %d not found", family, id)
	}
	strat, _ := strategyFor(family)
	if err := authorize(p, strat.warehouses(doc)); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// List returns documents of a family, limited to the principal's warehouses
// unless elevated.
func (s *Service) List(ctx context.Context, p access.Principal, filter ListFilter, page shared.PageRequest) ([]Document, shared.Pagination, error) {
	if _, ok := strategyFor(filter.Family); !ok {
		return nil, shared.Pagination{}, shared.Validation("unknown document family %q", filter.Family)
	}
	if !p.IsElevated() {
		if !p.IsScoped() || len(p.WarehouseScope) == 0 {
			return nil, shared.Pagination{}, shared.AccessDenied("access: role %q may not list documents", p.Role)
		}
		if filter.Family != FamilyReceipt {
			filter.WarehouseIDs = p.WarehouseScope
		}
	}
	filter.Limit = page.Limit()
	filter.Offset = page.Offset()
	docs, total, err := s.repo.ListDocuments(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return docs, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// History returns the approval trail of a document.
func (s *Service) History(ctx context.Context, p access.Principal, family Family, id int64) ([]shared.ApprovalLog, error) {
	doc, err := s.Get(ctx, p, family, id)
	if err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, string(family), doc.UID)
}

func (s *Service) recordApproval(ctx context.Context, p access.Principal, action shared.ApprovalAction, doc Document) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  string(doc.Family),
		RefID:   doc.UID,
		ActorID: p.ID,
		Action:  action,
		Note:    doc.Number,
	})
	if err != nil {
		s.logger.Warn("record approval", slog.String("number", doc.Number), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, p access.Principal, action string, doc Document) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.ID,
		Action:   action,
		Entity:   "documents",
		EntityID: fmt.Sprintf("%d", doc.ID),
		Meta:     map[string]any{"family": doc.Family, "number": doc.Number, "status": doc.Status},
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(family Family, action string, err error) {
	if s.observer != nil {
		s.observer.ObserveTransition(string(family), action, err)
	}
	if err != nil && shared.KindOf(err) == shared.KindInternal && !errors.Is(err, context.Canceled) {
		s.logger.Error("document transition failed", slog.String("family", string(family)), slog.String("action", action), slog.Any("error", err))
	}
}
