package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/cache/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

type failingCache struct{}

func (failingCache) Incr(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}
func (failingCache) Get(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}
func (failingCache) SetMarker(context.Context, string, time.Duration) error {
	return errors.New("connection refused")
}
func (failingCache) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func newTestManager(cfg Config) (*Manager, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 3, 14, 10, 15, 0, 0, time.UTC)}
	return NewManager(memory.New(clk), clk, cfg, nil), clk
}

func TestKeys(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 14, 9, 59, 0, 0, time.UTC)
	require.Equal(t, "budget:serpapi:hour:2024-03-14-09", HourKey("serpapi", at))
	require.Equal(t, "budget:serpapi:month:2024-03", MonthKey("serpapi", at))
}

func TestCanUseUntilHourlyLimitThenRollover(t *testing.T) {
	t.Parallel()

	m, clk := newTestManager(Config{Default: Limits{Hourly: 3, Monthly: 100}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, m.CanUse(ctx, "serpapi", 1), "call %d", i)
		require.NoError(t, m.RecordUse(ctx, "serpapi", 1))
	}
	require.False(t, m.CanUse(ctx, "serpapi", 1))

	remaining, err := m.RemainingHourly(ctx, "serpapi")
	require.NoError(t, err)
	require.Zero(t, remaining)

	clk.Set(time.Date(2024, 3, 14, 11, 0, 0, 0, time.UTC))
	require.True(t, m.CanUse(ctx, "serpapi", 1))

	remaining, err = m.RemainingMonthly(ctx, "serpapi")
	require.NoError(t, err)
	require.EqualValues(t, 97, remaining)
}

func TestCanUseMonthlyLimit(t *testing.T) {
	t.Parallel()

	m, clk := newTestManager(Config{Default: Limits{Hourly: 10, Monthly: 2}})
	ctx := context.Background()

	require.NoError(t, m.RecordUse(ctx, "serpapi", 1))
	clk.Set(clk.Now().Add(time.Hour))
	require.NoError(t, m.RecordUse(ctx, "serpapi", 1))
	require.False(t, m.CanUse(ctx, "serpapi", 1))

	clk.Set(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, m.CanUse(ctx, "serpapi", 1))
}

func TestCanUseCountMustFit(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(Config{Default: Limits{Hourly: 5, Monthly: 100}})
	ctx := context.Background()

	require.NoError(t, m.RecordUse(ctx, "serpapi", 3))
	require.True(t, m.CanUse(ctx, "serpapi", 2))
	require.False(t, m.CanUse(ctx, "serpapi", 3))
}

func TestPerAPILimits(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(Config{
		Default: Limits{Hourly: 10, Monthly: 100},
		PerAPI:  map[string]Limits{"scrapingbee": {Hourly: 1}},
	})
	require.Equal(t, Limits{Hourly: 1, Monthly: 100}, m.LimitsFor("scrapingbee"))
	require.Equal(t, Limits{Hourly: 10, Monthly: 100}, m.LimitsFor("serpapi"))
}

func TestFailsClosedWhenCacheUnavailable(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Now().UTC()}
	m := NewManager(failingCache{}, clk, Config{Default: Limits{Hourly: 10, Monthly: 10}}, nil)
	ctx := context.Background()

	require.False(t, m.CanUse(ctx, "serpapi", 1))
	require.Error(t, m.RecordUse(ctx, "serpapi", 1))
	_, err := m.Usage(ctx, "serpapi")
	require.Error(t, err)
}

func TestUsageReportsLow(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(Config{Default: Limits{Hourly: 10, Monthly: 1000}, LowThreshold: 0.2})
	ctx := context.Background()

	require.NoError(t, m.RecordUse(ctx, "serpapi", 8))
	u, err := m.Usage(ctx, "serpapi")
	require.NoError(t, err)
	require.Equal(t, WindowUsage{Used: 8, Limit: 10, Remaining: 2, Percentage: 80}, u.Hourly)
	require.False(t, u.IsLow)

	require.NoError(t, m.RecordUse(ctx, "serpapi", 1))
	u, err = m.Usage(ctx, "serpapi")
	require.NoError(t, err)
	require.True(t, u.IsLow)
}

func TestRecordUseConcurrent(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(Config{Default: Limits{Hourly: 1000, Monthly: 1000}})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RecordUse(ctx, "serpapi", 1)
		}()
	}
	wg.Wait()

	u, err := m.Usage(ctx, "serpapi")
	require.NoError(t, err)
	require.EqualValues(t, 40, u.Hourly.Used)
	require.EqualValues(t, 40, u.Monthly.Used)
}
