package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Timeline implements Repository.
func (r *PGRepository) Timeline(ctx context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}
	if f.ActorID > 0 {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	query := `SELECT id, occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta for %d: %w", row.ID, err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
