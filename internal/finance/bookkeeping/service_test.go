package bookkeeping

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-hms/meridian/internal/money"
	"github.com/meridian-hms/meridian/internal/shared"
)

type memoryRepo struct {
	revenue  []RevenueEntry
	expenses []ExpenseEntry
}

func (r *memoryRepo) InsertRevenue(ctx context.Context, e RevenueEntry) (RevenueEntry, error) {
	e.ID = int64(len(r.revenue) + 1)
	r.revenue = append(r.revenue, e)
	return e, nil
}

func (r *memoryRepo) InsertExpense(ctx context.Context, e ExpenseEntry) (ExpenseEntry, error) {
	e.ID = int64(len(r.expenses) + 1)
	r.expenses = append(r.expenses, e)
	return e, nil
}

func (r *memoryRepo) ListRevenue(ctx context.Context, f Filter) ([]RevenueEntry, error) {
	var out []RevenueEntry
	for _, e := range r.revenue {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) ListExpenses(ctx context.Context, f Filter) ([]ExpenseEntry, error) {
	var out []ExpenseEntry
	for _, e := range r.expenses {
		if !f.From.IsZero() && e.OccurredOn.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.OccurredOn.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type bumpCounter struct{ n int }

func (b *bumpCounter) Bump(ctx context.Context) error {
	b.n++
	return nil
}

func TestPostRevenue(t *testing.T) {
	repo := &memoryRepo{}
	bumps := &bumpCounter{}
	svc := NewService(repo, bumps, nil, nil)
	ctx := context.Background()

	invoiceID := int64(5)
	entry, err := svc.PostRevenue(ctx, RevenueInput{Category: "pharmacy", Amount: money.MustParse("45.00"), InvoiceID: &invoiceID,
		OccurredOn: time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Equal(t, CategoryPharmacy, entry.Category)
	require.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), entry.OccurredOn)
	require.Equal(t, 1, bumps.n)

	_, err = svc.PostRevenue(ctx, RevenueInput{Category: "X", Amount: money.Zero})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
	_, err = svc.PostRevenue(ctx, RevenueInput{Amount: money.MustParse("1")})
	require.ErrorIs(t, err, ErrCategoryRequired)
}

func TestRecordExpense(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	entry, err := svc.RecordExpense(ctx, ExpenseInput{OccurredOn: "2026-02-10", Category: " utilities ", Amount: "120.456", ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, "UTILITIES", entry.Category)
	require.Equal(t, "120.46", money.Format(entry.Amount))

	_, err = svc.RecordExpense(ctx, ExpenseInput{Category: "rent", Amount: "-5"})
	require.ErrorIs(t, err, shared.ErrNegativeAmount)
	_, err = svc.RecordExpense(ctx, ExpenseInput{Category: "rent", Amount: "ten"})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
	_, err = svc.RecordExpense(ctx, ExpenseInput{Category: "rent", Amount: "5", OccurredOn: "10/02/2026"})
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestListSwapsReversedRange(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()
	_, err := svc.RecordExpense(ctx, ExpenseInput{OccurredOn: "2026-02-10", Category: "rent", Amount: "5"})
	require.NoError(t, err)

	out, err := svc.ListExpenses(ctx, Filter{
		From: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
}
