// Package finder queries one external signal source per product (prices,
// reviews, images, press). Finders never return errors: a failed search
// yields an empty Result whose Err records the cause, so one source failing
// never blocks the others.
package finder

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/metrics"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
)

// Finder names used in logs, metrics and enrichment counts.
const (
	NamePrice   = "prices"
	NameReview  = "reviews"
	NameImage   = "images"
	NameArticle = "articles"
)

// Result carries a finder's entries and the suppressed error, if any.
type Result[T any] struct {
	Entries []T
	Err     error
}

// OK reports whether the search succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Skipped reports whether the call was refused by the budget.
func (r Result[T]) Skipped() bool { return errors.Is(r.Err, searchapi.ErrBudgetExhausted) }

// query joins non-empty parts with single spaces.
func query(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// brandedName returns "{brand} {name}", or just the name when no brand is known.
func brandedName(p *discovery.Product) string {
	return query(p.Brand, p.Name)
}

// search runs one call and reports failures through logs and metrics.
func search(ctx context.Context, s searchapi.Searcher, logger *zap.Logger, name string, p *discovery.Product, req searchapi.Request) (*searchapi.Response, error) {
	if p == nil || !p.HasIdentity() {
		metrics.ObserveFinder(name, "invalid")
		return nil, discovery.ErrInvalidProduct
	}
	resp, err := s.Search(ctx, req)
	switch {
	case errors.Is(err, searchapi.ErrBudgetExhausted):
		metrics.ObserveFinder(name, "skipped")
		logger.Info("finder skipped: budget exhausted",
			zap.String("finder", name), zap.String("product_id", p.ID))
		return nil, err
	case err != nil:
		metrics.ObserveFinder(name, "error")
		logger.Warn("finder search failed",
			zap.String("finder", name),
			zap.String("product_id", p.ID),
			zap.String("query", req.Query),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.ObserveFinder(name, "ok")
	return resp, nil
}

func limit[T any](entries []T, n int) []T {
	if n > 0 && len(entries) > n {
		return entries[:n]
	}
	return entries
}
