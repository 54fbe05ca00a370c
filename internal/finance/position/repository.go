package position

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PGRepository reads report aggregates from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// RevenueByCategory sums revenue entries per category.
func (r *PGRepository) RevenueByCategory(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	return r.byCategory(ctx, `SELECT category, COALESCE(SUM(amount), 0) FROM revenue_entries
WHERE occurred_on BETWEEN $1 AND $2 GROUP BY category`, from, to)
}

// ExpensesByCategory sums expense entries per category.
func (r *PGRepository) ExpensesByCategory(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	return r.byCategory(ctx, `SELECT category, COALESCE(SUM(amount), 0) FROM expense_entries
WHERE occurred_on BETWEEN $1 AND $2 GROUP BY category`, from, to)
}

func (r *PGRepository) byCategory(ctx context.Context, query string, from, to time.Time) ([]CategoryTotal, error) {
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryTotal
	for rows.Next() {
		var row CategoryTotal
		if err := rows.Scan(&row.Category, &row.Total); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CashCollected sums payments created within the period.
func (r *PGRepository) CashCollected(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
WHERE created_at::date BETWEEN $1 AND $2`, from, to).Scan(&total)
	return total, err
}

// AccountsReceivable sums the totals of DUE invoices.
func (r *PGRepository) AccountsReceivable(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0) FROM invoices WHERE status='DUE'`).Scan(&total)
	return total, err
}
