package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-hms/meridian/jobs"
)

// Enqueuer submits tasks to the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error)
}

// QueueInspector summarises the worker queues.
type QueueInspector interface {
	Inspect() ([]jobs.QueueSummary, error)
}

// JobsCLI wraps manual management helpers for the worker queue.
type JobsCLI struct {
	client    Enqueuer
	inspector QueueInspector
	retention time.Duration
}

// NewJobsCLI initialises the helpers.
func NewJobsCLI(client Enqueuer, inspector QueueInspector, retention time.Duration) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector, retention: retention}
}

// Trigger enqueues a supported job by name with its default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := jobs.NewTask(name, c.retention)
	if err != nil {
		return nil, fmt.Errorf("jobs cli: %w (known: %s)", err, strings.Join(jobs.TaskNames(), ", "))
	}
	return c.client.Enqueue(ctx, task)
}

// PrintQueue writes one summary line per queue to w.
func (c *JobsCLI) PrintQueue(w io.Writer) error {
	if c == nil || c.inspector == nil {
		return errors.New("jobs cli: inspector not configured")
	}
	queues, err := c.inspector.Inspect()
	if err != nil {
		return err
	}
	for _, s := range queues {
		if _, err := fmt.Fprintf(w, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d processed=%d failed=%d\n",
			s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived, s.Processed, s.Failed); err != nil {
			return err
		}
	}
	return nil
}

type asynqInspector struct {
	inspector *asynq.Inspector
}

func (a asynqInspector) Inspect() ([]jobs.QueueSummary, error) {
	return jobs.Inspect(a.inspector)
}
