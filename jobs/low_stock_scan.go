package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-hms/meridian/internal/jobs"
	"github.com/meridian-hms/meridian/internal/pharmacy/stock"
)

// StockReader lists medicines needing reorder.
type StockReader interface {
	LowStock(ctx context.Context) ([]stock.Medicine, error)
}

// LowStockGauge publishes the low-stock count.
type LowStockGauge interface {
	SetLowStock(n int)
}

// LowStockScanJob logs each active medicine at or below its reorder level.
type LowStockScanJob struct {
	Stock   StockReader
	Gauge   LowStockGauge
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob wires dependencies for the scan handler.
func NewLowStockScanJob(reader StockReader, gauge LowStockGauge, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Stock: reader, Gauge: gauge, Logger: logger, Metrics: metrics}
}

// Handle processes low-stock scan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Stock == nil {
		return errors.New("low stock scan: handler not configured")
	}
	run := j.Metrics.Track(TaskLowStockScan)
	defer func() {
		resultErr = run.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskLowStockScan)
	meds, err := j.Stock.LowStock(ctx)
	if err != nil {
		logger.Error("load low stock", slog.Any("error", err))
		return err
	}
	for _, med := range meds {
		logger.Warn("medicine below reorder level",
			slog.Int64("medicine_id", med.ID),
			slog.String("name", med.Name),
			slog.Int64("current_stock", med.CurrentStock),
			slog.Int64("reorder_level", med.ReorderLevel),
			slog.String("status", string(med.Status())))
	}
	run.Items(len(meds))
	if j.Gauge != nil {
		j.Gauge.SetLowStock(len(meds))
	}
	logger.Info("completed low stock scan", slog.Int("medicines", len(meds)))
	return nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
