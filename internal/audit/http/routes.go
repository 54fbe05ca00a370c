package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/shared"
)

// Exports scan up to 10000 rows; each actor gets ten per minute.
const (
	exportLimit  = 10
	exportWindow = time.Minute
)

// MountRoutes registers the audit timeline and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportLimit, exportWindow,
		httprate.WithKeyFuncs(exportKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too many exports", "audit export limit reached, retry in a minute")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermAuditView))
		r.Get("/", h.handleTimeline)
		r.With(limiter).Get("/export.csv", h.handleExport)
	})
}

func exportKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok && actor.ID > 0 {
		return "user:" + strconv.FormatInt(actor.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
