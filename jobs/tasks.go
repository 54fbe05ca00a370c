package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
)

// Queue names. Stock alerts outrank report warmups, which outrank housekeeping.
const (
	QueuePharmacy    = "pharmacy"
	QueueFinance     = "finance"
	QueueMaintenance = "maintenance"
)

var queueWeights = map[string]int{
	QueuePharmacy:    3,
	QueueFinance:     2,
	QueueMaintenance: 1,
}

// Queues lists the consumed queues, highest priority first.
func Queues() []string {
	names := make([]string, 0, len(queueWeights))
	for name := range queueWeights {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return queueWeights[names[i]] > queueWeights[names[j]] })
	return names
}

const (

	// TaskLowStockScan reports active medicines at or below their reorder level.
	TaskLowStockScan = "pharmacy:low_stock_scan"
	// TaskIdempotencyCleanup expires old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskPositionWarmup pre-computes the current month's financial position.
	TaskPositionWarmup = "finance:position_warmup"
)

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewLowStockScanTask constructs the low-stock scan task. A manual trigger
// while a scan is queued is dropped.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil, asynq.Queue(QueuePharmacy), asynq.Unique(10*time.Minute))
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueMaintenance)), nil
}

// NewPositionWarmupTask constructs the report warmup task. Duplicate warmups
// queued within a minute collapse into one.
func NewPositionWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskPositionWarmup, nil, asynq.Queue(QueueFinance), asynq.Unique(time.Minute))
}

var taskBuilders = map[string]func(retention time.Duration) (*asynq.Task, error){
	TaskLowStockScan: func(time.Duration) (*asynq.Task, error) { return NewLowStockScanTask(), nil },
	TaskIdempotencyCleanup: func(retention time.Duration) (*asynq.Task, error) {
		return NewIdempotencyCleanupTask(retention)
	},
	TaskPositionWarmup: func(time.Duration) (*asynq.Task, error) { return NewPositionWarmupTask(), nil },
}

// TaskNames lists the task types the worker handles.
func TaskNames() []string {
	names := make([]string, 0, len(taskBuilders))
	for name := range taskBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewTask builds a task by name for manual triggering.
func NewTask(name string, retention time.Duration) (*asynq.Task, error) {
	build, ok := taskBuilders[name]
	if !ok {
		return nil, fmt.Errorf("jobs: unknown task %q", name)
	}
	return build(retention)
}
