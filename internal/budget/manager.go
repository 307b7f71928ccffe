// Package budget tracks per-API search quota over hourly and monthly windows.
//
// Counters live in the shared cache under keys derived from the current UTC
// time bucket, so a window resets implicitly when its key rolls over. All
// mutations go through the cache's atomic increment.
package budget

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/metrics"
)

const (
	hourTTL  = time.Hour
	monthTTL = 31 * 24 * time.Hour

	// DefaultLowThreshold flags an API as low once less than 10% of a window remains.
	DefaultLowThreshold = 0.10
)

// Limits caps usage per window.
type Limits struct {
	Hourly  int64
	Monthly int64
}

// Config holds default limits, per-API overrides and the low-quota threshold.
type Config struct {
	Default      Limits
	PerAPI       map[string]Limits
	LowThreshold float64
}

// Manager enforces budgets. It is safe for concurrent use.
type Manager struct {
	cache  discovery.Cache
	clock  discovery.Clock
	cfg    Config
	logger *zap.Logger
}

// WindowUsage summarizes one window.
type WindowUsage struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// Usage summarizes both windows for an API.
type Usage struct {
	API     string      `json:"api"`
	Hourly  WindowUsage `json:"hourly"`
	Monthly WindowUsage `json:"monthly"`
	IsLow   bool        `json:"is_low"`
}

// NewManager builds a Manager.
func NewManager(cache discovery.Cache, clock discovery.Clock, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LowThreshold <= 0 {
		cfg.LowThreshold = DefaultLowThreshold
	}
	return &Manager{cache: cache, clock: clock, cfg: cfg, logger: logger}
}

// HourKey returns the hourly counter key for api at t.
func HourKey(api string, t time.Time) string {
	return fmt.Sprintf("budget:%s:hour:%s", api, t.UTC().Format("2006-01-02-15"))
}

// MonthKey returns the monthly counter key for api at t.
func MonthKey(api string, t time.Time) string {
	return fmt.Sprintf("budget:%s:month:%s", api, t.UTC().Format("2006-01"))
}

// LimitsFor returns the configured limits for api, falling back to the defaults.
func (m *Manager) LimitsFor(api string) Limits {
	l, ok := m.cfg.PerAPI[api]
	if !ok {
		return m.cfg.Default
	}
	if l.Hourly <= 0 {
		l.Hourly = m.cfg.Default.Hourly
	}
	if l.Monthly <= 0 {
		l.Monthly = m.cfg.Default.Monthly
	}
	return l
}

// CanUse reports whether count more calls fit in both windows. Any cache
// failure denies usage.
func (m *Manager) CanUse(ctx context.Context, api string, count int64) bool {
	if count < 1 {
		count = 1
	}
	now := m.clock.Now()
	limits := m.LimitsFor(api)

	hourly, err := m.cache.Get(ctx, HourKey(api, now))
	if err != nil {
		m.logger.Warn("budget check failed; denying usage", zap.String("api", api), zap.Error(err))
		return false
	}
	monthly, err := m.cache.Get(ctx, MonthKey(api, now))
	if err != nil {
		m.logger.Warn("budget check failed; denying usage", zap.String("api", api), zap.Error(err))
		return false
	}
	ok := hourly+count <= limits.Hourly && monthly+count <= limits.Monthly
	if !ok {
		metrics.ObserveBudgetDenied(api)
		m.logger.Info("api budget exhausted",
			zap.String("api", api),
			zap.Int64("hourly_used", hourly),
			zap.Int64("monthly_used", monthly),
		)
	}
	return ok
}

// RecordUse increments both windows by count.
func (m *Manager) RecordUse(ctx context.Context, api string, count int64) error {
	if count < 1 {
		return nil
	}
	now := m.clock.Now()
	hourly, err := m.cache.Incr(ctx, HourKey(api, now), count, hourTTL)
	if err != nil {
		return fmt.Errorf("record hourly usage: %w", err)
	}
	monthly, err := m.cache.Incr(ctx, MonthKey(api, now), count, monthTTL)
	if err != nil {
		return fmt.Errorf("record monthly usage: %w", err)
	}

	limits := m.LimitsFor(api)
	usage := m.summarize(api, limits, hourly, monthly)
	metrics.SetBudgetRemaining(api, "hour", usage.Hourly.Remaining)
	metrics.SetBudgetRemaining(api, "month", usage.Monthly.Remaining)
	if usage.IsLow {
		m.logger.Warn("api budget running low",
			zap.String("api", api),
			zap.Int64("hourly_remaining", usage.Hourly.Remaining),
			zap.Int64("monthly_remaining", usage.Monthly.Remaining),
		)
	}
	return nil
}

// RemainingHourly returns the calls left in the current hour.
func (m *Manager) RemainingHourly(ctx context.Context, api string) (int64, error) {
	used, err := m.cache.Get(ctx, HourKey(api, m.clock.Now()))
	if err != nil {
		return 0, fmt.Errorf("read hourly usage: %w", err)
	}
	return max(m.LimitsFor(api).Hourly-used, 0), nil
}

// RemainingMonthly returns the calls left in the current month.
func (m *Manager) RemainingMonthly(ctx context.Context, api string) (int64, error) {
	used, err := m.cache.Get(ctx, MonthKey(api, m.clock.Now()))
	if err != nil {
		return 0, fmt.Errorf("read monthly usage: %w", err)
	}
	return max(m.LimitsFor(api).Monthly-used, 0), nil
}

// Usage reports both windows for api.
func (m *Manager) Usage(ctx context.Context, api string) (Usage, error) {
	now := m.clock.Now()
	hourly, err := m.cache.Get(ctx, HourKey(api, now))
	if err != nil {
		return Usage{}, fmt.Errorf("read hourly usage: %w", err)
	}
	monthly, err := m.cache.Get(ctx, MonthKey(api, now))
	if err != nil {
		return Usage{}, fmt.Errorf("read monthly usage: %w", err)
	}
	return m.summarize(api, m.LimitsFor(api), hourly, monthly), nil
}

func (m *Manager) summarize(api string, limits Limits, hourly, monthly int64) Usage {
	u := Usage{
		API:     api,
		Hourly:  window(hourly, limits.Hourly),
		Monthly: window(monthly, limits.Monthly),
	}
	u.IsLow = isLow(u.Hourly, m.cfg.LowThreshold) || isLow(u.Monthly, m.cfg.LowThreshold)
	return u
}

func window(used, limit int64) WindowUsage {
	w := WindowUsage{Used: used, Limit: limit, Remaining: max(limit-used, 0)}
	if limit > 0 {
		w.Percentage = float64(used) * 100 / float64(limit)
	}
	return w
}

func isLow(w WindowUsage, threshold float64) bool {
	if w.Limit <= 0 {
		return true
	}
	return float64(w.Remaining)/float64(w.Limit) < threshold
}
