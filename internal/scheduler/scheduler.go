// Package scheduler hands out discovery search queries and keeps executed
// queries on a cooldown in the shared cache.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/hash/sha256"
)

// DefaultCooldown is how long an executed query is withheld.
const DefaultCooldown = 24 * time.Hour

const cooldownPrefix = "discovery:query:"

// Scheduler selects the next queries for a category.
type Scheduler struct {
	cache     discovery.Cache
	clock     discovery.Clock
	templates Templates
	cooldown  time.Duration
	logger    *zap.Logger
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithCooldown overrides the cooldown window.
func WithCooldown(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// New builds a Scheduler. Nil templates use DefaultTemplates.
func New(cache discovery.Cache, clock discovery.Clock, templates Templates, logger *zap.Logger, opts ...Option) *Scheduler {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cache:     cache,
		clock:     clock,
		templates: templates,
		cooldown:  DefaultCooldown,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Categories lists the configured categories.
func (s *Scheduler) Categories() []string {
	out := make([]string, 0, len(s.templates))
	for c := range s.templates {
		out = append(out, c)
	}
	return out
}

// NextQueries returns up to count queries for category that are not cooling
// down, in group priority order. It does not mark anything as executed, so
// repeated calls return the same queries. A query whose cooldown cannot be read
// is withheld.
func (s *Scheduler) NextQueries(ctx context.Context, category string, count int) ([]string, error) {
	groups, ok := s.templates[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", discovery.ErrUnknownCategory, category)
	}
	if count <= 0 {
		return nil, nil
	}

	year := s.clock.Now().UTC().Year()
	replacer := strings.NewReplacer(
		"{year}", strconv.Itoa(year),
		"{last_year}", strconv.Itoa(year-1),
	)

	seen := make(map[string]struct{})
	out := make([]string, 0, count)
	for _, group := range GroupOrder {
		for _, tmpl := range groups[group] {
			query := replacer.Replace(tmpl)
			norm := Normalize(query)
			if norm == "" {
				continue
			}
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}

			cooling, err := s.cache.Exists(ctx, CooldownKey(query))
			if err != nil {
				s.logger.Warn("query cooldown check failed; skipping query",
					zap.String("query", query), zap.Error(err))
				continue
			}
			if cooling {
				continue
			}
			out = append(out, query)
			if len(out) == count {
				return out, nil
			}
		}
	}
	return out, nil
}

// MarkExecuted starts the cooldown for query. Budget accounting is the caller's job.
func (s *Scheduler) MarkExecuted(ctx context.Context, query string) error {
	if err := s.cache.SetMarker(ctx, CooldownKey(query), s.cooldown); err != nil {
		return fmt.Errorf("mark query executed: %w", err)
	}
	return nil
}

// Normalize lowercases a query and collapses whitespace.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// CooldownKey returns the cache key holding the cooldown marker for query.
func CooldownKey(query string) string {
	return cooldownPrefix + sha256.Sum([]byte(Normalize(query)))
}
