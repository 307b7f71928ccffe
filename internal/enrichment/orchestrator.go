// Package enrichment runs the source finders for a product, merges their
// entries into the product record and persists the result.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/finder"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/metrics"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/scoring"
)

// Source is implemented by each finder.
type Source[T any] interface {
	Find(ctx context.Context, p *discovery.Product, maxResults int) finder.Result[T]
}

// Finders groups the per-category sources. A nil source disables its category.
type Finders struct {
	Prices   Source[discovery.PriceEntry]
	Reviews  Source[discovery.RatingEntry]
	Images   Source[discovery.ImageEntry]
	Articles Source[discovery.ArticleEntry]
}

// Flags selects which categories run.
type Flags struct {
	Prices   bool `json:"prices" mapstructure:"prices"`
	Reviews  bool `json:"reviews" mapstructure:"reviews"`
	Images   bool `json:"images" mapstructure:"images"`
	Articles bool `json:"articles" mapstructure:"articles"`
}

// AllCategories enables every finder.
func AllCategories() Flags {
	return Flags{Prices: true, Reviews: true, Images: true, Articles: true}
}

// ParseOnly maps an "only" selector to flags. An empty selector enables everything.
func ParseOnly(only string) (Flags, error) {
	switch strings.ToLower(strings.TrimSpace(only)) {
	case "":
		return AllCategories(), nil
	case finder.NamePrice:
		return Flags{Prices: true}, nil
	case finder.NameReview:
		return Flags{Reviews: true}, nil
	case finder.NameImage:
		return Flags{Images: true}, nil
	case finder.NameArticle:
		return Flags{Articles: true}, nil
	}
	return Flags{}, fmt.Errorf("unknown category %q", only)
}

// Limits caps the entries requested from each finder.
type Limits struct {
	Prices   int `mapstructure:"prices"`
	Reviews  int `mapstructure:"reviews"`
	Images   int `mapstructure:"images"`
	Articles int `mapstructure:"articles"`
}

// DefaultLimits returns the per-finder result caps.
func DefaultLimits() Limits {
	return Limits{Prices: 10, Reviews: 5, Images: 5, Articles: 5}
}

// Config tunes the orchestrator.
type Config struct {
	Limits     Limits
	Thresholds scoring.Thresholds
	// Workers bounds EnrichBatch concurrency.
	Workers int
	// ParallelFinders runs the finder calls for one product concurrently.
	// Merging always happens in a fixed category order.
	ParallelFinders bool
	Topic           string
}

// Result summarizes one enrichment attempt.
type Result struct {
	ProductID string                  `json:"product_id"`
	Success   bool                    `json:"success"`
	Counts    map[string]int          `json:"counts"`
	Skipped   []string                `json:"skipped,omitempty"`
	Score     int                     `json:"completeness_score"`
	Status    discovery.ProductStatus `json:"status,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// Event is published after each enrichment attempt.
type Event struct {
	ProductID string                  `json:"product_id"`
	Success   bool                    `json:"success"`
	Counts    map[string]int          `json:"counts"`
	Score     int                     `json:"completeness_score"`
	Status    discovery.ProductStatus `json:"status"`
	At        time.Time               `json:"at"`
}

// Orchestrator enriches products.
type Orchestrator struct {
	finders   Finders
	store     discovery.ProductStore
	publisher discovery.Publisher
	clock     discovery.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewOrchestrator builds an Orchestrator. publisher may be nil.
func NewOrchestrator(
	finders Finders,
	store discovery.ProductStore,
	publisher discovery.Publisher,
	clock discovery.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("product store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Thresholds == (scoring.Thresholds{}) {
		cfg.Thresholds = scoring.DefaultThresholds()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Orchestrator{
		finders:   finders,
		store:     store,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// found holds the finder output for one product before merging.
type found struct {
	prices   finder.Result[discovery.PriceEntry]
	reviews  finder.Result[discovery.RatingEntry]
	images   finder.Result[discovery.ImageEntry]
	articles finder.Result[discovery.ArticleEntry]
}

// EnrichProduct runs the enabled finders for p, merges their entries and
// persists p after each category. Finder failures are tolerated; a failed
// merge or write marks the whole attempt failed even though the other
// categories still run and may already be stored.
func (o *Orchestrator) EnrichProduct(ctx context.Context, p *discovery.Product, flags Flags) Result {
	if p == nil {
		return Result{Error: discovery.ErrInvalidProduct.Error(), Counts: map[string]int{}}
	}
	res := Result{ProductID: p.ID, Counts: make(map[string]int)}
	if !p.HasIdentity() {
		res.Error = fmt.Errorf("product %s: %w", p.ID, discovery.ErrInvalidProduct).Error()
		metrics.ObserveEnrichment(false, p.CompletenessScore)
		return res
	}
	flags = o.effective(flags)
	logger := o.logger.With(zap.String("product_id", p.ID))

	f := o.find(ctx, p, flags)

	var errs []error
	apply := func(name string, enabled bool, skipped bool, merge func() int) {
		if !enabled {
			return
		}
		if skipped {
			res.Skipped = append(res.Skipped, name)
		}
		res.Counts[name] = merge()
		if err := o.store.UpdateProduct(ctx, p); err != nil {
			logger.Error("persist enrichment failed", zap.String("finder", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("aggregate %s: %w", name, err))
		}
	}
	apply(finder.NamePrice, flags.Prices, f.prices.Skipped(), func() int { return mergePrices(p, f.prices.Entries) })
	apply(finder.NameReview, flags.Reviews, f.reviews.Skipped(), func() int { return mergeRatings(p, f.reviews.Entries) })
	apply(finder.NameImage, flags.Images, f.images.Skipped(), func() int { return mergeImages(p, f.images.Entries) })
	apply(finder.NameArticle, flags.Articles, f.articles.Skipped(), func() int { return mergeArticles(p, f.articles.Entries) })

	now := o.clock.Now()
	p.CompletenessScore = scoring.Score(p)
	p.LastEnrichedAt = &now
	p.UpdatedAt = now
	if len(errs) == 0 {
		p.Status = o.cfg.Thresholds.StatusFor(p.CompletenessScore)
	} else {
		p.Status = discovery.StatusFailed
	}
	if err := o.store.UpdateProduct(ctx, p); err != nil {
		errs = append(errs, fmt.Errorf("persist product: %w", err))
		p.Status = discovery.StatusFailed
	}

	res.Score = p.CompletenessScore
	res.Status = p.Status
	if err := errors.Join(errs...); err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
	}
	metrics.ObserveEnrichment(res.Success, res.Score)
	logger.Info("enrichment finished",
		zap.Bool("success", res.Success),
		zap.Int("completeness_score", res.Score),
		zap.String("status", string(res.Status)),
		zap.Any("counts", res.Counts),
	)
	o.notify(ctx, res, now)
	return res
}

// effective drops categories without a configured finder.
func (o *Orchestrator) effective(flags Flags) Flags {
	flags.Prices = flags.Prices && o.finders.Prices != nil
	flags.Reviews = flags.Reviews && o.finders.Reviews != nil
	flags.Images = flags.Images && o.finders.Images != nil
	flags.Articles = flags.Articles && o.finders.Articles != nil
	return flags
}

func (o *Orchestrator) find(ctx context.Context, p *discovery.Product, flags Flags) found {
	var f found
	calls := make([]func(), 0, 4)
	if flags.Prices {
		calls = append(calls, func() { f.prices = o.finders.Prices.Find(ctx, p, o.cfg.Limits.Prices) })
	}
	if flags.Reviews {
		calls = append(calls, func() { f.reviews = o.finders.Reviews.Find(ctx, p, o.cfg.Limits.Reviews) })
	}
	if flags.Images {
		calls = append(calls, func() { f.images = o.finders.Images.Find(ctx, p, o.cfg.Limits.Images) })
	}
	if flags.Articles {
		calls = append(calls, func() { f.articles = o.finders.Articles.Find(ctx, p, o.cfg.Limits.Articles) })
	}
	if !o.cfg.ParallelFinders {
		for _, call := range calls {
			call()
		}
		return f
	}
	// Finders only read p; each call writes its own field of f.
	var wg sync.WaitGroup
	for _, call := range calls {
		call := call
		wg.Add(1)
		go func() {
			defer wg.Done()
			call()
		}()
	}
	wg.Wait()
	return f
}

func (o *Orchestrator) notify(ctx context.Context, res Result, at time.Time) {
	if o.publisher == nil {
		return
	}
	ev := Event{
		ProductID: res.ProductID,
		Success:   res.Success,
		Counts:    res.Counts,
		Score:     res.Score,
		Status:    res.Status,
		At:        at,
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, ev); err != nil {
		o.logger.Warn("publish enrichment event failed",
			zap.String("product_id", res.ProductID), zap.Error(err))
	}
}

// EnrichBatch enriches each product independently with bounded concurrency.
// It always returns one Result per input, in input order.
func (o *Orchestrator) EnrichBatch(ctx context.Context, products []*discovery.Product, flags Flags) []Result {
	results := make([]Result, len(products))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, p := range products {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{ProductID: productID(p), Counts: map[string]int{}, Error: err.Error()}
				return nil
			}
			results[i] = o.EnrichProduct(gctx, p, flags)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func productID(p *discovery.Product) string {
	if p == nil {
		return ""
	}
	return p.ID
}
