package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/rbac"
	"github.com/meridian-hms/meridian/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler exposes invoice and payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the billing handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermFinanceInvoiceView))
		r.Get("/invoices", h.handleList)
		r.Get("/invoices/export.csv", h.handleExportCSV)
		r.Get("/invoices/export.xlsx", h.handleExportXLSX)
		r.Get("/invoices/{id}", h.handleGet)
		r.Get("/invoices/{id}/payments", h.handlePayments)
		r.Get("/invoices/{id}/export.csv", h.handleExportOne)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermFinanceInvoiceEdit))
		r.Post("/invoices", h.handleCreate)
		r.Post("/invoices/for-prescription", h.handleCreateForPrescription)
		r.Put("/invoices/{id}", h.handleUpdate)
	})
	r.With(h.rbac.RequireAll(shared.PermFinanceInvoiceVoid)).Post("/invoices/{id}/void", h.handleVoid)
	r.With(h.rbac.RequireAll(shared.PermFinancePayment)).Post("/invoices/{id}/payments", h.handleRecordPayment)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if !decode(w, r, &req) {
		return
	}
	req.Actor, _ = shared.ActorFromContext(r.Context())
	inv, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

type forPrescriptionRequest struct {
	PrescriptionID    int64       `json:"prescription_id" validate:"required,gt=0"`
	MedicineID        int64       `json:"medicine_id" validate:"required,gt=0"`
	Quantity          *int64      `json:"quantity"`
	Discount          json.Number `json:"discount"`
	AdditionalCharges json.Number `json:"additional_charges"`
	AdditionalLabel   string      `json:"additional_label" validate:"max=120"`
}

func (h *Handler) handleCreateForPrescription(w http.ResponseWriter, r *http.Request) {
	var req forPrescriptionRequest
	if !decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.CreateForPrescription(r.Context(), ForPrescriptionInput{
		PrescriptionID:    req.PrescriptionID,
		MedicineID:        req.MedicineID,
		Quantity:          req.Quantity,
		Discount:          req.Discount.String(),
		AdditionalCharges: req.AdditionalCharges.String(),
		AdditionalLabel:   req.AdditionalLabel,
		Actor:             actor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req UpdateInput
	if !decode(w, r, &req) {
		return
	}
	req.Actor, _ = shared.ActorFromContext(r.Context())
	inv, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

type paymentRequest struct {
	Amount    json.Number `json:"amount" validate:"required"`
	Method    string      `json:"method" validate:"max=20"`
	Reference string      `json:"reference" validate:"max=120"`
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.RecordPayment(r.Context(), PaymentInput{
		InvoiceID: id,
		Amount:    req.Amount.String(),
		Method:    req.Method,
		Reference: req.Reference,
		Actor:     actor,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.Void(r.Context(), id, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) handlePayments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	payments, err := h.service.Payments(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.List(r.Context(), parseListFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.List(r.Context(), parseListFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoices_%s.csv"`, time.Now().UTC().Format(dateLayout)))
	if err := WriteInvoicesCSV(w, invoices); err != nil {
		h.logger.ErrorContext(r.Context(), "write invoice export", slog.Any("error", err))
	}
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.List(r.Context(), parseListFilter(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoices_%s.xlsx"`, time.Now().UTC().Format(dateLayout)))
	if err := WriteInvoicesXLSX(w, invoices); err != nil {
		h.logger.ErrorContext(r.Context(), "write invoice workbook", slog.Any("error", err))
	}
}

func (h *Handler) handleExportOne(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	payments, err := h.service.Payments(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice_%d.csv"`, inv.ID))
	if err := WriteInvoiceCSV(w, inv, payments); err != nil {
		h.logger.ErrorContext(r.Context(), "write invoice export", slog.Any("error", err))
	}
}

// parseListFilter ignores unparseable values.
func parseListFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	var f ListFilter
	if v := q.Get("status"); v != "" {
		f.Status = Status(v)
	}
	if v, err := strconv.ParseInt(q.Get("patient_id"), 10, 64); err == nil {
		f.PatientID = v
	}
	if v, err := strconv.ParseInt(q.Get("prescription_id"), 10, 64); err == nil {
		f.PrescriptionID = v
	}
	if v, err := time.Parse(dateLayout, q.Get("start_date")); err == nil {
		f.From = v
	}
	if v, err := time.Parse(dateLayout, q.Get("end_date")); err == nil {
		f.To = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = v
	}
	return f
}

func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := httpx.Validate(target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidMethod), errors.Is(err, ErrPatientRequired):
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	case errors.Is(err, shared.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate payment", "payment reference already recorded")
		return
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError && h.logger != nil {
		h.logger.ErrorContext(r.Context(), "billing request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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
