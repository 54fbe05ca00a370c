package dispense

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/rbac"
	"github.com/meridian-hms/meridian/internal/shared"
)

// Handler wires HTTP endpoints for prescriptions.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the prescription handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers prescription routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPrescriptionDispense, shared.PermPrescriptionManage))
		r.Get("/prescriptions/{id}", h.handleGet)
		r.Get("/prescriptions/{id}/dispense", h.handleGetRecord)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPrescriptionDispense))
		r.Post("/prescriptions/{id}/dispense", h.handleDispense)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPrescriptionManage))
		r.Post("/prescriptions", h.handleCreate)
		r.Post("/prescriptions/{id}/complete", h.handleTransition(h.service.Complete))
		r.Post("/prescriptions/{id}/cancel", h.handleTransition(h.service.Cancel))
		r.Post("/prescriptions/{id}/reinitiate", h.handleTransition(h.service.Reinitiate))
	})
}

type dispenseRequest struct {
	MedicineID        int64       `json:"medicine_id" validate:"required,gt=0"`
	Quantity          *int64      `json:"quantity"`
	Discount          json.Number `json:"discount"`
	AdditionalCharges json.Number `json:"additional_charges"`
	AdditionalNote    string      `json:"additional_note" validate:"max=500"`
}

func (h *Handler) handleDispense(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req dispenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	rec, err := h.service.Dispense(r.Context(), Input{
		PrescriptionID:    id,
		MedicineID:        req.MedicineID,
		Quantity:          req.Quantity,
		Discount:          req.Discount.String(),
		AdditionalCharges: req.AdditionalCharges.String(),
		AdditionalNote:    req.AdditionalNote,
		Actor:             actor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Actor, _ = shared.ActorFromContext(r.Context())
	rx, err := h.service.CreatePrescription(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rx)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rx, err := h.service.GetPrescription(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rx)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetRecord(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

type transitionFunc func(ctx context.Context, id int64, actor shared.Actor) (Prescription, error)

func (h *Handler) handleTransition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		actor, _ := shared.ActorFromContext(r.Context())
		rx, err := fn(r.Context(), id, actor)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rx)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError && h.logger != nil {
		h.logger.ErrorContext(r.Context(), "prescription request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
