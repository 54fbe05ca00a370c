package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-hms/meridian/internal/app"
	"github.com/meridian-hms/meridian/internal/audit"
	audithttp "github.com/meridian-hms/meridian/internal/audit/http"
	"github.com/meridian-hms/meridian/internal/auth"
	"github.com/meridian-hms/meridian/internal/finance/billing"
	"github.com/meridian-hms/meridian/internal/finance/bookkeeping"
	"github.com/meridian-hms/meridian/internal/finance/position"
	"github.com/meridian-hms/meridian/internal/observability"
	"github.com/meridian-hms/meridian/internal/pharmacy/dispense"
	"github.com/meridian-hms/meridian/internal/pharmacy/intake"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/platform/cache"
	"github.com/meridian-hms/meridian/internal/platform/db"
	"github.com/meridian-hms/meridian/internal/rbac"
	"github.com/meridian-hms/meridian/internal/shared"
	"github.com/meridian-hms/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnMaxAge})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	underflow, err := cfg.UnderflowPolicy()
	if err != nil {
		logger.Error("stock underflow policy", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	domainMetrics := observability.NewDomain(metrics.Registerer())

	auditLogger := shared.NewAuditLogger(dbpool)
	policy := rbac.DefaultPolicy()
	rbacMiddleware := rbac.Middleware{Policy: policy, Logger: logger}

	ledger := stock.NewLedger(underflow, logger)
	stockService := stock.NewService(stock.NewRepository(dbpool), ledger, auditLogger, domainMetrics, logger)
	dispenseService := dispense.NewService(dispense.NewRepository(dbpool), ledger, policy, dispense.Options{
		Observer: stockService,
		Audit:    auditLogger,
		Metrics:  domainMetrics,
		Logger:   logger,
	})
	importer := intake.NewImporter(stockService, logger).WithMetrics(domainMetrics)

	reportCache := position.NewCache(redisClient, cfg.ReportCacheTTL)
	bookkeepingService := bookkeeping.NewService(bookkeeping.NewRepository(dbpool), reportCache, auditLogger, logger)
	billingService := billing.NewService(billing.NewRepository(dbpool), policy, billing.Options{
		Revenue:       bookkeepingService,
		Prescriptions: dispenseService,
		Medicines:     stockService,
		Cache:         reportCache,
		Audit:         auditLogger,
		Metrics:       domainMetrics,
		Logger:        logger,
	})
	positionService := position.NewService(position.NewRepository(dbpool), reportCache, domainMetrics, logger)

	inspector := asynq.NewInspector(cfg.AsynqRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Verifier:           auth.NewVerifier(cfg.JWTSecret),
		Metrics:            metrics,
		StockHandler:       stock.NewHandler(logger, stockService, rbacMiddleware),
		DispenseHandler:    dispense.NewHandler(logger, dispenseService, rbacMiddleware),
		IntakeHandler:      intake.NewHandler(logger, importer, rbacMiddleware),
		BillingHandler:     billing.NewHandler(logger, billingService, rbacMiddleware),
		BookkeepingHandler: bookkeeping.NewHandler(logger, bookkeepingService, rbacMiddleware),
		PositionHandler:    position.NewHandler(logger, positionService, rbacMiddleware),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
