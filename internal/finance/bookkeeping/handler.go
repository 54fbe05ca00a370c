package bookkeeping

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/rbac"
	"github.com/meridian-hms/meridian/internal/shared"
)

// Handler exposes revenue and expense endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the bookkeeping handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers bookkeeping routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermFinanceReportView))
		r.Get("/revenues", h.handleListRevenue)
		r.Get("/expenses", h.handleListExpenses)
	})
	r.With(h.rbac.RequireAll(shared.PermFinanceExpense)).Post("/expenses", h.handleRecordExpense)
}

func (h *Handler) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	req.ActorID = actor.ID
	entry, err := h.service.RecordExpense(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleListRevenue(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListRevenue(r.Context(), parseFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListExpenses(r.Context(), parseFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

// parseFilter ignores unparseable dates, matching the listing contract.
func parseFilter(r *http.Request) Filter {
	q := r.URL.Query()
	var f Filter
	if t, err := time.Parse(DateLayout, q.Get("start_date")); err == nil {
		f.From = t
	}
	if t, err := time.Parse(DateLayout, q.Get("end_date")); err == nil {
		f.To = t
	}
	f.Category = q.Get("category")
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	return f
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrCategoryRequired) || errors.Is(err, ErrInvalidDate) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		if h.logger != nil {
			h.logger.ErrorContext(r.Context(), "bookkeeping request failed", slog.Any("error", err))
		}
	}
	httpx.RespondError(w, err)
}
