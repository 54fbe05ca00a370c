package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const defaultConcurrency = 5

// Worker runs task handlers and, when cron entries are configured, the scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker builds the server with weighted queues. Unknown task types and
// empty cron entries are rejected so a typo fails at startup.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if _, ok := taskBuilders[h.Type]; !ok || h.Handler == nil {
			return nil, fmt.Errorf("jobs: invalid handler for %q", h.Type)
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  concurrency,
		Queues:       queueWeights,
		ErrorHandler: failureLogger(logger),
	})

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				return nil, errors.New("jobs: cron entry needs a spec and a task")
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, fmt.Errorf("jobs: register %s: %w", entry.Task.Type(), err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler}, nil
}

func failureLogger(logger *slog.Logger) asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		level := slog.LevelWarn
		if retried >= maxRetry {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "job failed",
			slog.String("task", task.Type()),
			slog.Int("retried", retried),
			slog.Int("max_retry", maxRetry),
			slog.Any("error", err))
	})
}

// Run processes jobs until ctx is cancelled or the server stops.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
		defer w.scheduler.Shutdown()
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits jobs. Each task carries its own queue option.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// Enqueue submits task.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
