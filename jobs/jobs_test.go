package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/meridian-hms/meridian/internal/finance/position"
	jobmetrics "github.com/meridian-hms/meridian/internal/jobs"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
)

type stubStock struct {
	meds []stock.Medicine
	err  error
}

func (s stubStock) LowStock(ctx context.Context) ([]stock.Medicine, error) { return s.meds, s.err }

type gauge struct{ n int }

func (g *gauge) SetLowStock(n int) { g.n = n }

type cleaner struct{ got time.Duration }

func (c *cleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	c.got = olderThan
	return 3, nil
}

type warmer struct{ calls int }

func (w *warmer) Warm(ctx context.Context) (position.Report, error) {
	w.calls++
	return position.Report{Period: position.Period{StartDate: "2026-03-01", EndDate: "2026-03-17"}}, nil
}

type enqueuer struct{ tasks []string }

func (e *enqueuer) Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task.Type())
	if len(e.tasks) > 1 {
		return nil, asynq.ErrDuplicateTask
	}
	return &asynq.TaskInfo{}, nil
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestLowStockScanSetsGauge(t *testing.T) {
	g := &gauge{}
	job := NewLowStockScanJob(stubStock{meds: []stock.Medicine{{ID: 1, Name: "Amoxicillin", CurrentStock: 2, ReorderLevel: 10}, {ID: 2}}}, g, nil, testMetrics())
	require.NoError(t, job.Handle(context.Background(), NewLowStockScanTask()))
	require.Equal(t, 2, g.n)
}

func TestLowStockScanPropagatesError(t *testing.T) {
	job := NewLowStockScanJob(stubStock{err: errors.New("db down")}, nil, nil, testMetrics())
	require.Error(t, job.Handle(context.Background(), NewLowStockScanTask()))
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	c := &cleaner{}
	job := NewIdempotencyCleanupJob(c, 24*time.Hour, nil, testMetrics())

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, c.got)

	task, err = NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Hour, c.got)

	job.Retention = 0
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, DefaultIdempotencyRetention, c.got)

	err = job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPositionWarmup(t *testing.T) {
	w := &warmer{}
	job := NewPositionWarmupJob(w, nil, testMetrics())
	require.NoError(t, job.Handle(context.Background(), NewPositionWarmupTask()))
	require.Equal(t, 1, w.calls)
}

func TestWarmOnBumpIgnoresDuplicates(t *testing.T) {
	bumps := make(chan int64, 2)
	bumps <- 2
	bumps <- 3
	close(bumps)
	e := &enqueuer{}
	WarmOnBump(context.Background(), bumps, e, nil)
	require.Equal(t, []string{TaskPositionWarmup, TaskPositionWarmup}, e.tasks)
}

func TestNewTaskByName(t *testing.T) {
	require.Equal(t, []string{TaskPositionWarmup, TaskIdempotencyCleanup, TaskLowStockScan}, TaskNames())
	for _, name := range TaskNames() {
		task, err := NewTask(name, time.Hour)
		require.NoError(t, err)
		require.Equal(t, name, task.Type())
	}
	task, err := NewTask(TaskIdempotencyCleanup, time.Hour)
	require.NoError(t, err)
	var payload IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, time.Hour, payload.Retention)

	_, err = NewTask("mail:send", 0)
	require.Error(t, err)
}
