package attachments

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Handler exposes attachment endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: httpx.NewValidator()}
}

// MountRoutes registers attachment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/attachments", h.create)
	r.Get("/attachments", h.list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validate, in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := access.PrincipalFromContext(r.Context())
	a, err := h.service.Attach(r.Context(), p, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("transactionId"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.Validation("transactionId: must be a positive integer"))
		return
	}
	p, _ := access.PrincipalFromContext(r.Context())
	items, err := h.service.List(r.Context(), p, q.Get("transactionType"), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Attachment{}
	}
	httpx.JSON(w, http.StatusOK, items)
}
