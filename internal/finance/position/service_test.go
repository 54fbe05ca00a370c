package position

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-hms/meridian/internal/money"
)

type mockRepo struct {
	mu         sync.Mutex
	revenue    []CategoryTotal
	expenses   []CategoryTotal
	cash       decimal.Decimal
	receivable decimal.Decimal
	calls      int
	from, to   time.Time
}

func (m *mockRepo) RevenueByCategory(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.from, m.to = from, to
	return append([]CategoryTotal(nil), m.revenue...), nil
}

func (m *mockRepo) ExpensesByCategory(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	return append([]CategoryTotal(nil), m.expenses...), nil
}

func (m *mockRepo) CashCollected(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	return m.cash, nil
}

func (m *mockRepo) AccountsReceivable(ctx context.Context) (decimal.Decimal, error) {
	return m.receivable, nil
}

func (m *mockRepo) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type cacheCounter struct {
	mu           sync.Mutex
	hits, misses int
}

func (c *cacheCounter) ReportCache(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *cacheCounter) ReportBuild(time.Duration) {}

func sampleRepo() *mockRepo {
	return &mockRepo{
		revenue: []CategoryTotal{
			{Category: "SERVICES", Total: money.MustParse("120.00")},
			{Category: "PHARMACY", Total: money.MustParse("450.50")},
		},
		expenses: []CategoryTotal{
			{Category: "SUPPLIES", Total: money.MustParse("80.25")},
			{Category: "UTILITIES", Total: money.MustParse("100.00")},
		},
		cash:       money.MustParse("500.00"),
		receivable: money.MustParse("45.00"),
	}
}

func setupService(t *testing.T, repo Repository) (*Service, *Cache, *cacheCounter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	counter := &cacheCounter{}
	svc := NewService(repo, cache, counter, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 17, 15, 4, 0, 0, time.UTC) }
	return svc, cache, counter
}

func TestReportTotalsAndBreakdown(t *testing.T) {
	svc, _, _ := setupService(t, sampleRepo())
	report, err := svc.Report(context.Background(), Query{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Equal(t, "570.50", money.Format(report.Totals.Revenue))
	require.Equal(t, "180.25", money.Format(report.Totals.Expenses))
	require.Equal(t, "390.25", money.Format(report.Totals.NetPosition))
	require.Equal(t, "45.00", money.Format(report.Totals.AccountsReceivable))
	require.Equal(t, "500.00", money.Format(report.Totals.CashCollected))
	require.Equal(t, "PHARMACY", report.Breakdown.RevenueByCategory[0].Category)
	require.Equal(t, "UTILITIES", report.Breakdown.ExpensesByCategory[0].Category)
}

func TestReportDefaultsToCurrentMonth(t *testing.T) {
	repo := sampleRepo()
	svc, _, _ := setupService(t, repo)
	report, err := svc.Report(context.Background(), Query{})
	require.NoError(t, err)
	require.Equal(t, Period{StartDate: "2026-03-01", EndDate: "2026-03-17"}, report.Period)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), repo.from)
}

func TestReportSwapsReversedRange(t *testing.T) {
	svc, _, _ := setupService(t, sampleRepo())
	start, end := svc.Resolve(Query{
		Start: time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, "2026-02-01", start.Format(DateLayout))
	require.Equal(t, "2026-02-28", end.Format(DateLayout))
}

func TestReportEmptyPeriod(t *testing.T) {
	svc, _, _ := setupService(t, &mockRepo{cash: money.Zero, receivable: money.Zero})
	report, err := svc.Report(context.Background(), Query{})
	require.NoError(t, err)
	require.True(t, report.Totals.NetPosition.IsZero())
	require.NotNil(t, report.Breakdown.RevenueByCategory)
	require.Empty(t, report.Breakdown.RevenueByCategory)
}

func TestReportCachesUntilBump(t *testing.T) {
	ctx := context.Background()
	repo := sampleRepo()
	svc, cache, counter := setupService(t, repo)

	_, err := svc.Report(ctx, Query{})
	require.NoError(t, err)
	cached, err := svc.Report(ctx, Query{})
	require.NoError(t, err)
	require.Equal(t, 1, repo.callCount())
	require.Equal(t, "570.50", money.Format(cached.Totals.Revenue))
	require.Equal(t, 1, counter.hits)

	require.NoError(t, cache.Bump(ctx))
	_, err = svc.Report(ctx, Query{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.callCount())
}

func TestReportWithoutCache(t *testing.T) {
	repo := sampleRepo()
	svc := NewService(repo, nil, nil, nil)
	_, err := svc.Report(context.Background(), Query{})
	require.NoError(t, err)
	_, err = svc.Report(context.Background(), Query{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.callCount())
}

func TestReportFallsBackWhenRedisDown(t *testing.T) {
	repo := sampleRepo()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, NewCache(client, time.Minute), nil, nil)
	mr.Close()

	report, err := svc.Report(context.Background(), Query{})
	require.NoError(t, err)
	require.Equal(t, "570.50", money.Format(report.Totals.Revenue))
}

func TestCacheSubscribeReceivesBump(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, cache, _ := setupService(t, sampleRepo())

	bumps := cache.Subscribe(ctx)
	require.Eventually(t, func() bool {
		if err := cache.Bump(ctx); err != nil {
			return false
		}
		select {
		case v := <-bumps:
			return v > 0
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCacheKeyFollowsVersion(t *testing.T) {
	ctx := context.Background()
	_, cache, _ := setupService(t, sampleRepo())
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	key, err := cache.Key(ctx, start, end)
	require.NoError(t, err)
	require.Equal(t, "finance:position:v0:2026-03-01:2026-03-31", key)

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Bump(ctx))
	bumped, err := cache.Key(ctx, start, end)
	require.NoError(t, err)
	require.Equal(t, "finance:position:v1:2026-03-01:2026-03-31", bumped)
}
