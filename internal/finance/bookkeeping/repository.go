package bookkeeping

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func optionalID(id *int64) pgtype.Int8 {
	if id == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *id, Valid: true}
}

func fromOptional(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

// InsertRevenue appends a revenue row.
func (r *Repository) InsertRevenue(ctx context.Context, e RevenueEntry) (RevenueEntry, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO revenue_entries (occurred_on, category, amount, invoice_id, payment_id, description, recorded_by)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		pgtype.Date{Time: e.OccurredOn, Valid: true}, e.Category, e.Amount, optionalID(e.InvoiceID), optionalID(e.PaymentID),
		e.Description, pgtype.Int8{Int64: e.RecordedBy, Valid: e.RecordedBy != 0}).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return RevenueEntry{}, fmt.Errorf("bookkeeping: insert revenue: %w", err)
	}
	return e, nil
}

// InsertExpense appends an expense row.
func (r *Repository) InsertExpense(ctx context.Context, e ExpenseEntry) (ExpenseEntry, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO expense_entries (occurred_on, category, amount, vendor, description, recorded_by)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		pgtype.Date{Time: e.OccurredOn, Valid: true}, e.Category, e.Amount, e.Vendor, e.Description,
		pgtype.Int8{Int64: e.RecordedBy, Valid: e.RecordedBy != 0}).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return ExpenseEntry{}, fmt.Errorf("bookkeeping: insert expense: %w", err)
	}
	return e, nil
}

func filterClause(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		args = append(args, pgtype.Date{Time: f.From, Valid: true})
		where = append(where, fmt.Sprintf("occurred_on >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, pgtype.Date{Time: f.To, Valid: true})
		where = append(where, fmt.Sprintf("occurred_on <= $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	clause += fmt.Sprintf(" ORDER BY occurred_on DESC, created_at DESC LIMIT $%d", len(args))
	return clause, args
}

// ListRevenue lists revenue rows.
func (r *Repository) ListRevenue(ctx context.Context, f Filter) ([]RevenueEntry, error) {
	clause, args := filterClause(f)
	rows, err := r.pool.Query(ctx, `SELECT id, occurred_on, category, amount, invoice_id, payment_id, description, recorded_by, created_at
FROM revenue_entries`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("bookkeeping: list revenue: %w", err)
	}
	defer rows.Close()
	var out []RevenueEntry
	for rows.Next() {
		var (
			e                RevenueEntry
			occurred         pgtype.Date
			invoice, payment pgtype.Int8
			recordedBy       pgtype.Int8
		)
		if err := rows.Scan(&e.ID, &occurred, &e.Category, &e.Amount, &invoice, &payment, &e.Description, &recordedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OccurredOn = occurred.Time
		e.InvoiceID = fromOptional(invoice)
		e.PaymentID = fromOptional(payment)
		e.RecordedBy = recordedBy.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListExpenses lists expense rows.
func (r *Repository) ListExpenses(ctx context.Context, f Filter) ([]ExpenseEntry, error) {
	clause, args := filterClause(f)
	rows, err := r.pool.Query(ctx, `SELECT id, occurred_on, category, amount, vendor, description, recorded_by, created_at
FROM expense_entries`+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("bookkeeping: list expenses: %w", err)
	}
	defer rows.Close()
	var out []ExpenseEntry
	for rows.Next() {
		var (
			e          ExpenseEntry
			occurred   pgtype.Date
			recordedBy pgtype.Int8
		)
		if err := rows.Scan(&e.ID, &occurred, &e.Category, &e.Amount, &e.Vendor, &e.Description, &recordedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OccurredOn = occurred.Time
		e.RecordedBy = recordedBy.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}
