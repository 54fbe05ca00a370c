package position

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-hms/meridian/internal/money"
)

// Repository reads the aggregates a report is built from.
type Repository interface {
	RevenueByCategory(ctx context.Context, from, to time.Time) ([]CategoryTotal, error)
	ExpensesByCategory(ctx context.Context, from, to time.Time) ([]CategoryTotal, error)
	// CashCollected sums payments whose creation date falls in range.
	CashCollected(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	// AccountsReceivable sums the totals of every DUE invoice, regardless of period.
	AccountsReceivable(ctx context.Context) (decimal.Decimal, error)
}

// Metrics observes report cache behaviour.
type Metrics interface {
	ReportCache(hit bool)
	ReportBuild(d time.Duration)
}

// Service builds financial position reports.
type Service struct {
	repo    Repository
	cache   *Cache
	metrics Metrics
	logger  *slog.Logger
	group   singleflight.Group
	now     func() time.Time
}

// NewService builds Service. cache and metrics may be nil.
func NewService(repo Repository, cache *Cache, metrics Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, metrics: metrics, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Resolve applies period defaults: the first of the current month through
// today, with reversed bounds swapped.
func (s *Service) Resolve(q Query) (time.Time, time.Time) {
	today := truncateDay(s.now())
	start, end := truncateDay(q.Start), truncateDay(q.End)
	if q.Start.IsZero() {
		start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	if q.End.IsZero() {
		end = today
	}
	if end.Before(start) {
		start, end = end, start
	}
	return start, end
}

// Report returns the financial position for q. Concurrent requests for the
// same period share one build; cache failures fall back to a direct build.
func (s *Service) Report(ctx context.Context, q Query) (Report, error) {
	start, end := s.Resolve(q)
	key, err := s.cache.Key(ctx, start, end)
	if err != nil {
		s.logger.Warn("report cache key", slog.Any("error", err))
		return s.build(ctx, start, end)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		if cached, ok, err := s.cache.Get(ctx, key); err != nil {
			return nil, err
		} else if ok {
			s.observeCache(true)
			return cached, nil
		}
		report, err := s.build(ctx, start, end)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Put(ctx, key, report); err != nil {
			s.logger.Warn("store report", slog.String("key", key), slog.Any("error", err))
		}
		s.observeCache(false)
		return report, nil
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			s.logger.Warn("report cache fetch", slog.String("key", key), slog.Any("error", res.Err))
			return s.build(ctx, start, end)
		}
		return res.Val.(Report), nil
	}
}

func (s *Service) observeCache(hit bool) {
	if s.metrics != nil {
		s.metrics.ReportCache(hit)
	}
}

// Warm builds and caches the current month's report.
func (s *Service) Warm(ctx context.Context) (Report, error) {
	return s.Report(ctx, Query{})
}

func (s *Service) build(ctx context.Context, start, end time.Time) (Report, error) {
	began := time.Now()
	revenue, err := s.repo.RevenueByCategory(ctx, start, end)
	if err != nil {
		return Report{}, err
	}
	expenses, err := s.repo.ExpensesByCategory(ctx, start, end)
	if err != nil {
		return Report{}, err
	}
	cash, err := s.repo.CashCollected(ctx, start, end)
	if err != nil {
		return Report{}, err
	}
	receivable, err := s.repo.AccountsReceivable(ctx)
	if err != nil {
		return Report{}, err
	}
	sortBreakdown(revenue)
	sortBreakdown(expenses)
	revenueTotal := sumTotals(revenue)
	expenseTotal := sumTotals(expenses)
	report := Report{
		Period: Period{StartDate: start.Format(DateLayout), EndDate: end.Format(DateLayout)},
		Totals: Totals{
			Revenue:            revenueTotal,
			Expenses:           expenseTotal,
			NetPosition:        revenueTotal.Sub(expenseTotal),
			AccountsReceivable: receivable.Round(money.Scale),
			CashCollected:      cash.Round(money.Scale),
		},
		Breakdown: Breakdown{
			RevenueByCategory:  nonNil(revenue),
			ExpensesByCategory: nonNil(expenses),
		},
		GeneratedAt: s.now(),
	}
	if s.metrics != nil {
		s.metrics.ReportBuild(time.Since(began))
	}
	return report, nil
}

func sortBreakdown(rows []CategoryTotal) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Total.Cmp(rows[j].Total); c != 0 {
			return c > 0
		}
		return rows[i].Category < rows[j].Category
	})
}

func sumTotals(rows []CategoryTotal) decimal.Decimal {
	total := money.Zero
	for _, row := range rows {
		total = total.Add(row.Total)
	}
	return total.Round(money.Scale)
}

func nonNil(rows []CategoryTotal) []CategoryTotal {
	if rows == nil {
		return []CategoryTotal{}
	}
	return rows
}

func truncateDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
