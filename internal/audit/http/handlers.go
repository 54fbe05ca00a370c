// Package audithttp exposes the audit timeline over HTTP.
package audithttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meridian-hms/meridian/internal/audit"
	"github.com/meridian-hms/meridian/internal/platform/httpx"
	"github.com/meridian-hms/meridian/internal/rbac"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

var errInvalidFilter = errors.New("invalid filter")

// TimelineService defines the reads the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service TimelineService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := audit.WriteCSV(&buf, rows); err != nil {
		h.logger.Error("write audit csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	filename := fmt.Sprintf("audit-%s-%s.csv", filters.From.Format("20060102"), filters.To.Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// parseFilters defaults to the last seven days and caps the window at 90 days.
func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()
	filters := audit.TimelineFilters{
		To:       now,
		From:     now.Add(-defaultDateRange),
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.TrimSpace(q.Get("entity_id")),
		Action:   strings.TrimSpace(q.Get("action")),
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filters, fmt.Errorf("%w: from must be YYYY-MM-DD", errInvalidFilter)
		}
		filters.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return filters, fmt.Errorf("%w: to must be YYYY-MM-DD", errInvalidFilter)
		}
		filters.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if filters.To.Sub(filters.From) > maxDateRange || filters.From.Sub(filters.To) > maxDateRange {
		return filters, fmt.Errorf("%w: range exceeds 90 days", errInvalidFilter)
	}
	var err error
	if filters.ActorID, err = optionalInt(q.Get("actor_id")); err != nil {
		return filters, fmt.Errorf("%w: actor_id", errInvalidFilter)
	}
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		return filters, fmt.Errorf("%w: page", errInvalidFilter)
	}
	size, err := optionalInt(q.Get("page_size"))
	if err != nil {
		return filters, fmt.Errorf("%w: page_size", errInvalidFilter)
	}
	filters.Page, filters.PageSize = int(page), int(size)
	return filters, nil
}

func optionalInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errInvalidFilter
	}
	return v, nil
}
