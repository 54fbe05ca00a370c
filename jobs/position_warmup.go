package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-hms/meridian/internal/finance/position"
	jobmetrics "github.com/meridian-hms/meridian/internal/jobs"
)

// ReportWarmer builds and caches the current month's report.
type ReportWarmer interface {
	Warm(ctx context.Context) (position.Report, error)
}

// PositionWarmupJob pre-populates the financial position cache.
type PositionWarmupJob struct {
	Reports ReportWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPositionWarmupJob wires dependencies for the warmup handler.
func NewPositionWarmupJob(reports ReportWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PositionWarmupJob {
	return &PositionWarmupJob{Reports: reports, Logger: logger, Metrics: metrics}
}

// Handle processes warmup tasks.
func (j *PositionWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("position warmup: handler not configured")
	}
	run := j.Metrics.Track(TaskPositionWarmup)
	defer func() {
		resultErr = run.End(resultErr)
	}()

	warmCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	logger := jobLogger(j.Logger, TaskPositionWarmup)
	report, err := j.Reports.Warm(warmCtx)
	if err != nil {
		logger.Error("warm financial position", slog.Any("error", err))
		return err
	}
	run.Items(1)
	logger.Info("completed position warmup",
		slog.String("start_date", report.Period.StartDate),
		slog.String("end_date", report.Period.EndDate))
	return nil
}

// Enqueuer submits tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error)
}

// WarmOnBump queues a warmup for every cache version bump until bumps closes.
func WarmOnBump(ctx context.Context, bumps <-chan int64, client Enqueuer, logger *slog.Logger) {
	logger = jobLogger(logger, TaskPositionWarmup)
	for ver := range bumps {
		_, err := client.Enqueue(ctx, NewPositionWarmupTask())
		if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
			logger.Warn("enqueue warmup after bump", slog.Int64("version", ver), slog.Any("error", err))
		}
	}
}
