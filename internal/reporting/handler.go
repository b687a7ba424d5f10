package reporting

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes on an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.stock)
	r.Get("/stock/quantity", h.quantity)
	r.Get("/stock/ledger", h.movements)
	r.Route("/reports", func(r chi.Router) {
		r.Get("/outstanding", h.outstanding)
		r.Get("/customers/{id}/statement", h.statement)
		r.Get("/collections", h.collections)
		r.Get("/export.xlsx", h.export)
	})
}

func (h *Handler) stock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wid, err := queryID(q.Get("warehouseId"), "warehouseId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pid, err := queryID(q.Get("productId"), "productId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, meta, err := h.service.StockOnHand(r.Context(), principal(r), StockFilter{WarehouseID: wid, ProductID: pid}, shared.ParsePageRequest(q))
	if err != nil {
		h.fail(w, "stock on hand", err)
		return
	}
	if rows == nil {
		rows = []StockRow{}
	}
	httpx.JSON(w, http.StatusOK, httpx.Page[StockRow]{Items: rows, Pagination: meta})
}

func (h *Handler) quantity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wid, err := queryID(q.Get("warehouseId"), "warehouseId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pid, err := queryID(q.Get("productId"), "productId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	level, err := h.service.Quantity(r.Context(), principal(r), wid, pid)
	if err != nil {
		h.fail(w, "stock quantity", err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wid, err := queryID(q.Get("warehouseId"), "warehouseId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pid, err := queryID(q.Get("productId"), "productId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			httpx.RespondError(w, shared.Validation("limit: must be a positive integer"))
			return
		}
	}
	history, err := h.service.Movements(r.Context(), principal(r), wid, pid, limit)
	if err != nil {
		h.fail(w, "stock ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, history)
}

func (h *Handler) outstanding(w http.ResponseWriter, r *http.Request) {
	rows, meta, err := h.service.Outstanding(r.Context(), principal(r), shared.ParsePageRequest(r.URL.Query()))
	if err != nil {
		h.fail(w, "outstanding", err)
		return
	}
	if rows == nil {
		rows = []OutstandingRow{}
	}
	httpx.JSON(w, http.StatusOK, httpx.Page[OutstandingRow]{Items: rows, Pagination: meta})
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(chi.URLParam(r, "id"), "id")
	if err != nil || id == 0 {
		httpx.RespondError(w, shared.Validation("id: must be a positive integer"))
		return
	}
	q := r.URL.Query()
	period, err := h.service.Period(q.Get("from"), q.Get("to"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.Statement(r.Context(), principal(r), id, period, shared.ParsePageRequest(q))
	if err != nil {
		h.fail(w, "statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) collections(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := h.service.Period(q.Get("from"), q.Get("to"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Collections(r.Context(), principal(r), period)
	if err != nil {
		h.fail(w, "collections", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), principal(r), &buf); err != nil {
		h.fail(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "odyssey-report.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error("report failed", slog.String("report", op), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func principal(r *http.Request) access.Principal {
	p, _ := access.PrincipalFromContext(r.Context())
	return p
}

func queryID(raw, field string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("%s: must be a positive integer", field)
	}
	return id, nil
}
