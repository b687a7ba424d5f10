package documents

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// IdempotencyHeader carries the client supplied replay key on create.
const IdempotencyHeader = "Idempotency-Key"

// routes maps URL segments to document families.
var routes = []struct {
	path   string
	family Family
}{
	{"/grns", FamilyGRN},
	{"/dispatches", FamilyDispatch},
	{"/transfers", FamilyTransfer},
	{"/sales-invoices", FamilySalesInvoice},
	{"/sales-returns", FamilySalesReturn},
	{"/receipts", FamilyReceipt},
	{"/adjustments", FamilyAdjustment},
}

// Handler exposes the document lifecycle over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validate  *validator.Validate
	access    access.Middleware
	adjustRPM int
}

// NewHandler builds Handler. adjustPerMinute caps stock adjustments per client IP.
func NewHandler(logger *slog.Logger, service *Service, mw access.Middleware, adjustPerMinute int) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validate:  httpx.NewValidator(),
		access:    mw,
		adjustRPM: adjustPerMinute,
	}
}

// MountRoutes registers document routes on an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, rt := range routes {
		family := rt.family
		r.Route(rt.path, func(r chi.Router) {
			r.Post("/", h.create(family))
			r.Get("/", h.list(family))
			r.Get("/{id}", h.get(family))
			r.Get("/{id}/approvals", h.history(family))
			r.Post("/{id}/approve", h.approve(family))
			if _, ok := strategies[family].(canceller); ok {
				r.Post("/{id}/cancel", h.cancel(family))
			}
		})
	}
	r.Group(func(r chi.Router) {
		r.Use(h.access.RequireElevatedRole)
		if h.adjustRPM > 0 {
			r.Use(httprate.LimitByIP(h.adjustRPM, time.Minute))
		}
		r.Post("/stock/adjust", h.adjust)
	})
}

type lineRequest struct {
	ProductID      int64           `json:"productId" validate:"required,gt=0"`
	Quantity       int64           `json:"quantity" validate:"gte=0"`
	Rate           decimal.Decimal `json:"rate"`
	Discount       decimal.Decimal `json:"discount"`
	TaxPercent     decimal.Decimal `json:"taxPercent"`
	TargetQuantity int64           `json:"targetQuantity" validate:"gte=0"`
	PackingType    string          `json:"packingType" validate:"max=32"`
	PackSize       int64           `json:"packSize" validate:"gte=0"`
	Note           string          `json:"note" validate:"max=500"`
}

type createRequest struct {
	WarehouseID     int64           `json:"warehouseId" validate:"gte=0"`
	DestWarehouseID int64           `json:"destWarehouseId" validate:"gte=0"`
	CustomerID      int64           `json:"customerId" validate:"gte=0"`
	InvoiceID       int64           `json:"invoiceId" validate:"gte=0"`
	Party           string          `json:"party" validate:"max=200"`
	Remarks         string          `json:"remarks" validate:"max=1000"`
	PaymentMode     string          `json:"paymentMode" validate:"omitempty,oneof=CASH BANK CARD UPI CHEQUE CREDIT"`
	Amount          decimal.Decimal `json:"amount"`
	Lines           []lineRequest   `json:"lines" validate:"dive"`
}

func (req createRequest) input(idempotencyKey string) CreateInput {
	in := CreateInput{
		WarehouseID:     req.WarehouseID,
		DestWarehouseID: req.DestWarehouseID,
		CustomerID:      req.CustomerID,
		InvoiceID:       req.InvoiceID,
		Party:           req.Party,
		Remarks:         req.Remarks,
		PaymentMode:     PaymentMode(req.PaymentMode),
		Amount:          req.Amount,
		IdempotencyKey:  idempotencyKey,
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput(l))
	}
	return in
}

type adjustRequest struct {
	WarehouseID int64  `json:"warehouseId" validate:"required,gt=0"`
	ProductID   int64  `json:"productId" validate:"required,gt=0"`
	NewQuantity *int64 `json:"newQuantity" validate:"required,gte=0"`
	Notes       string `json:"notes" validate:"max=1000"`
}

func (h *Handler) create(family Family) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := httpx.Validate(h.validate, req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		doc, err := h.service.Create(r.Context(), principal(r), family, req.input(r.Header.Get(IdempotencyHeader)))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) list(family Family) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{Family: family, Status: Status(q.Get("status"))}
		var err error
		if filter.CustomerID, err = optionalID(q.Get("customerId"), "customerId"); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if filter.InvoiceID, err = optionalID(q.Get("invoiceId"), "invoiceId"); err != nil {
			httpx.RespondError(w, err)
			return
		}
		docs, meta, err := h.service.List(r.Context(), principal(r), filter, shared.ParsePageRequest(q))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if docs == nil {
			docs = []Document{}
		}
		httpx.JSON(w, http.StatusOK, httpx.Page[Document]{Items: docs, Pagination: meta})
	}
}

func (h *Handler) get(family Family) http.HandlerFunc {
	return h.byID(func(r *http.Request, id int64) (any, error) {
		return h.service.Get(r.Context(), principal(r), family, id)
	})
}

func (h *Handler) history(family Family) http.HandlerFunc {
	return h.byID(func(r *http.Request, id int64) (any, error) {
		logs, err := h.service.History(r.Context(), principal(r), family, id)
		if logs == nil {
			logs = []shared.ApprovalLog{}
		}
		return logs, err
	})
}

func (h *Handler) approve(family Family) http.HandlerFunc {
	return h.byID(func(r *http.Request, id int64) (any, error) {
		return h.service.Approve(r.Context(), principal(r), family, id)
	})
}

func (h *Handler) cancel(family Family) http.HandlerFunc {
	return h.byID(func(r *http.Request, id int64) (any, error) {
		return h.service.Cancel(r.Context(), principal(r), family, id)
	})
}

func (h *Handler) byID(fn func(*http.Request, int64) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, shared.Validation("id: must be a positive integer"))
			return
		}
		out, err := fn(r, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.AdjustStock(r.Context(), principal(r), AdjustInput{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		NewQuantity: *req.NewQuantity,
		Notes:       req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("stock adjusted",
		slog.String("number", result.Number),
		slog.Int64("warehouse_id", req.WarehouseID),
		slog.Int64("product_id", req.ProductID),
		slog.Int64("previous", result.PreviousQuantity),
		slog.Int64("new", result.NewQuantity))
	httpx.JSON(w, http.StatusOK, result)
}

func principal(r *http.Request) access.Principal {
	p, _ := access.PrincipalFromContext(r.Context())
	return p
}

func optionalID(raw, field string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("%s: must be a positive integer", field)
	}
	return id, nil
}
