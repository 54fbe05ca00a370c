package stock

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hms/meridian/internal/money"
	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/rbac"
	"github.com/meridian-hms/meridian/internal/shared"
)

// Handler wires HTTP endpoints for the medicine catalog and ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers catalog and ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermMedicinesView))
		r.Get("/medicines", h.handleList)
		r.Get("/medicines/low-stock", h.handleLowStock)
		r.Get("/medicines/{id}", h.handleGet)
		r.Get("/medicines/{id}/ledger", h.handleHistory)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermMedicinesEdit))
		r.Post("/medicines", h.handleCreate)
		r.Post("/medicines/{id}/active", h.handleSetActive)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockRecord))
		r.Post("/ledger", h.handleRecord)
	})
}

type medicineResponse struct {
	Medicine
	Status StockStatus `json:"stock_status"`
}

func toResponse(med Medicine) medicineResponse {
	return medicineResponse{Medicine: med, Status: med.Status()}
}

func toResponses(meds []Medicine) []medicineResponse {
	out := make([]medicineResponse, 0, len(meds))
	for _, m := range meds {
		out = append(out, toResponse(m))
	}
	return out
}

type createMedicineRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Category     string `json:"category" validate:"required"`
	ReorderLevel int64  `json:"reorder_level" validate:"gte=0"`
	BuyingPrice  any    `json:"buying_price"`
	SellingPrice any    `json:"selling_price"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createMedicineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	buying, err := money.NonNegative(req.BuyingPrice)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	selling, err := money.NonNegative(req.SellingPrice)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	med, err := h.service.CreateMedicine(r.Context(), CreateMedicineInput{
		Name:         req.Name,
		Category:     Category(strings.ToUpper(strings.TrimSpace(req.Category))),
		ReorderLevel: req.ReorderLevel,
		BuyingPrice:  buying,
		SellingPrice: selling,
		ActorID:      actor.ID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(med))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	meds, err := h.service.ListMedicines(r.Context(), MedicineFilter{
		Search:     strings.TrimSpace(q.Get("search")),
		Category:   Category(strings.ToUpper(q.Get("category"))),
		ActiveOnly: q.Get("active") == "true",
		Status:     StockStatus(strings.ToUpper(q.Get("status"))),
		Limit:      limit,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(meds))
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	meds, err := h.service.LowStock(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(meds))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	med, err := h.service.GetMedicine(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(med))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.SetActive(r.Context(), id, req.Active, actor.ID); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordRequest struct {
	MedicineID  int64  `json:"medicine_id" validate:"required,gt=0"`
	Type        string `json:"transaction_type" validate:"required,oneof=STOCK_IN STOCK_OUT ADJUSTMENT"`
	Quantity    int64  `json:"quantity"`
	BatchNumber string `json:"batch_number" validate:"max=64"`
	ExpiryDate  string `json:"expiry_date"`
	UnitCost    any    `json:"unit_cost"`
	Note        string `json:"note" validate:"max=500"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	cost, err := money.NonNegative(req.UnitCost)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	in := RecordInput{
		MedicineID:  req.MedicineID,
		Type:        TransactionType(req.Type),
		Quantity:    req.Quantity,
		BatchNumber: strings.TrimSpace(req.BatchNumber),
		UnitCost:    cost,
		Note:        req.Note,
		ActorID:     actor.ID,
	}
	if req.ExpiryDate != "" {
		expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		in.ExpiryDate = &expiry
	}
	res, err := h.service.Record(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError && h.logger != nil {
		h.logger.ErrorContext(r.Context(), "stock request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, httpx.ErrValidation)
		return 0, false
	}
	return id, true
}
