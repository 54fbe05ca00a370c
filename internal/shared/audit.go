package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditRecorder is implemented by anything that can persist audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.At.IsZero() {
		log.At = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}

// RecordBestEffort writes the entry and only logs a failure.
func RecordBestEffort(ctx context.Context, recorder AuditRecorder, logger *slog.Logger, log AuditLog) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(ctx, log); err != nil && logger != nil {
		logger.Warn("audit record failed",
			slog.String("action", log.Action),
			slog.String("entity", log.Entity),
			slog.String("entity_id", log.EntityID),
			slog.Any("error", err),
		)
	}
}
