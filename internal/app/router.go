package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/meridian-hms/meridian/internal/audit/http"
	"github.com/meridian-hms/meridian/internal/auth"
	"github.com/meridian-hms/meridian/internal/finance/billing"
	"github.com/meridian-hms/meridian/internal/finance/bookkeeping"
	"github.com/meridian-hms/meridian/internal/finance/position"
	"github.com/meridian-hms/meridian/internal/observability"
	"github.com/meridian-hms/meridian/internal/pharmacy/dispense"
	"github.com/meridian-hms/meridian/internal/pharmacy/intake"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Verifier *auth.Verifier
	Metrics  *observability.Metrics

	StockHandler       *stock.Handler
	DispenseHandler    *dispense.Handler
	IntakeHandler      *intake.Handler
	BillingHandler     *billing.Handler
	BookkeepingHandler *bookkeeping.Handler
	PositionHandler    *position.Handler
	AuditHandler       *audithttp.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router serving the pharmacy and finance APIs.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Verifier: params.Verifier,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/pharmacy", func(r chi.Router) {
		if params.StockHandler != nil {
			params.StockHandler.MountRoutes(r)
		}
		if params.DispenseHandler != nil {
			params.DispenseHandler.MountRoutes(r)
		}
		if params.IntakeHandler != nil {
			params.IntakeHandler.MountRoutes(r)
		}
	})
	r.Route("/api/finance", func(r chi.Router) {
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		if params.BookkeepingHandler != nil {
			params.BookkeepingHandler.MountRoutes(r)
		}
		if params.PositionHandler != nil {
			params.PositionHandler.MountRoutes(r)
		}
	})
	if params.AuditHandler != nil {
		r.Route("/api/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/api/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
