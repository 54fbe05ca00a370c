package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-hms/meridian/internal/jobs"
)

// DefaultIdempotencyRetention applies when neither payload nor job set one.
const DefaultIdempotencyRetention = 72 * time.Hour

// KeyCleaner deletes idempotency keys older than a cutoff.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob expires payment idempotency keys.
type IdempotencyCleanupJob struct {
	Store     KeyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob wires dependencies for the cleanup handler.
func NewIdempotencyCleanupJob(store KeyCleaner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle processes cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = j.Retention
	}
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}

	run := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = run.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskIdempotencyCleanup)
	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		logger.Error("cleanup idempotency keys", slog.Any("error", err))
		return err
	}
	run.Items(int(removed))
	logger.Info("completed idempotency cleanup", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return nil
}
