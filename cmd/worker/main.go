package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-hms/meridian/internal/app"
	"github.com/meridian-hms/meridian/internal/finance/position"
	jobmetrics "github.com/meridian-hms/meridian/internal/jobs"
	"github.com/meridian-hms/meridian/internal/observability"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
	"github.com/meridian-hms/meridian/internal/platform/cache"
	"github.com/meridian-hms/meridian/internal/platform/db"
	"github.com/meridian-hms/meridian/internal/shared"
	"github.com/meridian-hms/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnMaxAge})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	metrics := observability.NewMetrics()
	domainMetrics := observability.NewDomain(metrics.Registerer())
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	stockService := stock.NewService(stock.NewRepository(pool), nil, nil, domainMetrics, logger)
	reportCache := position.NewCache(redisClient, cfg.ReportCacheTTL)
	positionService := position.NewService(position.NewRepository(pool), reportCache, domainMetrics, logger)

	lowStockJob := jobs.NewLowStockScanJob(stockService, domainMetrics, logger, jobMetrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), cfg.IdempotencyRetention, logger, jobMetrics)
	warmupJob := jobs.NewPositionWarmupJob(positionService, logger, jobMetrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := cfg.AsynqRedis()
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
			{Type: jobs.TaskPositionWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: jobs.NewLowStockScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "5 0 * * *", Task: jobs.NewPositionWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	go jobs.WarmOnBump(ctx, reportCache.Subscribe(ctx), client, logger)

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
