package intake

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/rbac"
	"github.com/meridian-hms/meridian/internal/shared"
)

const maxUploadBytes = 10 << 20

// Handler exposes vendor invoice uploads.
type Handler struct {
	logger   *slog.Logger
	importer *Importer
	rbac     rbac.Middleware
}

// NewHandler constructs the intake handler.
func NewHandler(logger *slog.Logger, importer *Importer, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, importer: importer, rbac: rbac}
}

// MountRoutes registers intake routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAll(shared.PermStockIntake)).Post("/intake", h.handleUpload)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	defer file.Close()

	lines, err := Parse(header.Filename, file)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid File", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	report, err := h.importer.Import(r.Context(), lines, actor.ID, r.FormValue("reference"))
	if err != nil {
		if h.logger != nil {
			h.logger.ErrorContext(r.Context(), "intake import", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
