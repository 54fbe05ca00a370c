package position

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/rbac"
	"github.com/meridian-hms/meridian/internal/shared"
)

// Handler exposes the financial position report.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the report handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermFinanceReportView)).Get("/position", h.handleReport)
}

// handleReport treats unparseable dates as absent.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	var q Query
	if v, err := time.Parse(DateLayout, r.URL.Query().Get("start_date")); err == nil {
		q.Start = v
	}
	if v, err := time.Parse(DateLayout, r.URL.Query().Get("end_date")); err == nil {
		q.End = v
	}
	report, err := h.service.Report(r.Context(), q)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "financial position failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
