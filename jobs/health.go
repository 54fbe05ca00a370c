package jobs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/meridian-hms/meridian/internal/platform/httpx"
)

// QueueSummary is a point-in-time view of one queue.
type QueueSummary struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

// QueueInfoReader is satisfied by *asynq.Inspector.
type QueueInfoReader interface {
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Inspect summarises every queue the worker consumes. A queue that has never
// received a task reports zeros.
func Inspect(inspector QueueInfoReader) ([]QueueSummary, error) {
	known := map[string]bool{}
	if inspector != nil {
		names, err := inspector.Queues()
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			known[name] = true
		}
	}
	out := make([]QueueSummary, 0, len(queueWeights))
	for _, name := range Queues() {
		summary := QueueSummary{Queue: name}
		if known[name] {
			info, err := inspector.GetQueueInfo(name)
			if err != nil {
				return nil, err
			}
			summary = QueueSummary{
				Queue:     info.Queue,
				Pending:   info.Pending,
				Active:    info.Active,
				Scheduled: info.Scheduled,
				Retry:     info.Retry,
				Archived:  info.Archived,
				Processed: info.Processed,
				Failed:    info.Failed,
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// Handler exposes queue health over HTTP.
type Handler struct {
	inspector QueueInfoReader
	logger    *slog.Logger
}

// NewHandler constructs the jobs handler. A nil inspector reports empty queues.
func NewHandler(inspector QueueInfoReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	queues, err := Inspect(h.inspector)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "job queue could not be inspected")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": queues})
}
