package bookkeeping

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meridian-hms/meridian/internal/money"
	"github.com/meridian-hms/meridian/internal/shared"
)

// RepositoryPort abstracts persistence.
type RepositoryPort interface {
	InsertRevenue(ctx context.Context, entry RevenueEntry) (RevenueEntry, error)
	InsertExpense(ctx context.Context, entry ExpenseEntry) (ExpenseEntry, error)
	ListRevenue(ctx context.Context, filter Filter) ([]RevenueEntry, error)
	ListExpenses(ctx context.Context, filter Filter) ([]ExpenseEntry, error)
}

// Invalidator is told when figures read by reports change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service records bookkeeping entries.
type Service struct {
	repo   RepositoryPort
	cache  Invalidator
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache Invalidator, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// PostRevenue appends a revenue entry.
func (s *Service) PostRevenue(ctx context.Context, in RevenueInput) (RevenueEntry, error) {
	category := normalizeCategory(in.Category)
	if category == "" {
		return RevenueEntry{}, ErrCategoryRequired
	}
	if !in.Amount.IsPositive() {
		return RevenueEntry{}, shared.Wrap(shared.ErrInvalidAmount, "revenue must be positive")
	}
	occurred := in.OccurredOn
	if occurred.IsZero() {
		occurred = s.now()
	}
	entry, err := s.repo.InsertRevenue(ctx, RevenueEntry{
		OccurredOn:  truncateDay(occurred),
		Category:    category,
		Amount:      in.Amount.Round(money.Scale),
		InvoiceID:   in.InvoiceID,
		PaymentID:   in.PaymentID,
		Description: strings.TrimSpace(in.Description),
		RecordedBy:  in.ActorID,
	})
	if err != nil {
		return RevenueEntry{}, err
	}
	s.invalidate(ctx)
	return entry, nil
}

// RecordExpense validates and appends an expense entry.
func (s *Service) RecordExpense(ctx context.Context, in ExpenseInput) (ExpenseEntry, error) {
	category := normalizeCategory(in.Category)
	if category == "" {
		return ExpenseEntry{}, ErrCategoryRequired
	}
	amount, err := money.Positive(in.Amount)
	if err != nil {
		return ExpenseEntry{}, err
	}
	occurred := s.now()
	if strings.TrimSpace(in.OccurredOn) != "" {
		occurred, err = time.Parse(DateLayout, strings.TrimSpace(in.OccurredOn))
		if err != nil {
			return ExpenseEntry{}, ErrInvalidDate
		}
	}
	entry, err := s.repo.InsertExpense(ctx, ExpenseEntry{
		OccurredOn:  truncateDay(occurred),
		Category:    category,
		Amount:      amount,
		Vendor:      strings.TrimSpace(in.Vendor),
		Description: strings.TrimSpace(in.Description),
		RecordedBy:  in.ActorID,
	})
	if err != nil {
		return ExpenseEntry{}, err
	}
	s.invalidate(ctx)
	shared.RecordBestEffort(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  in.ActorID,
		Action:   "finance:expense",
		Entity:   "expense_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     map[string]any{"category": entry.Category, "amount": money.Format(entry.Amount)},
	})
	return entry, nil
}

// ListRevenue lists revenue entries newest first.
func (s *Service) ListRevenue(ctx context.Context, filter Filter) ([]RevenueEntry, error) {
	return s.repo.ListRevenue(ctx, normalizeFilter(filter))
}

// ListExpenses lists expense entries newest first.
func (s *Service) ListExpenses(ctx context.Context, filter Filter) ([]ExpenseEntry, error) {
	return s.repo.ListExpenses(ctx, normalizeFilter(filter))
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.WarnContext(ctx, "report cache bump failed", slog.Any("error", err))
	}
}

func normalizeFilter(f Filter) Filter {
	f.Category = normalizeCategory(f.Category)
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		f.From, f.To = f.To, f.From
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 200
	}
	return f
}

func normalizeCategory(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
