// Package worker runs discovery for one category: scheduled queries are
// searched, results are ranked into targets, and new targets are recorded
// and handed off for product extraction.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/dedup"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/extractor"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
)

// QueryScheduler supplies queries and records their execution.
type QueryScheduler interface {
	NextQueries(ctx context.Context, category string, count int) ([]string, error)
	MarkExecuted(ctx context.Context, query string) error
}

// TargetExtractor ranks organic results into discovery targets.
type TargetExtractor interface {
	ExtractTargets(results []searchapi.OrganicResult, maxTargets int) []discovery.DiscoveryTarget
	ClearSeenCache()
}

// Registrar records URLs and resolves observations to products.
type Registrar interface {
	ObserveURL(ctx context.Context, rawURL, contentHash string, isProductPage bool) (dedup.URLResult, error)
	ResolveProduct(ctx context.Context, obs discovery.Observation) (dedup.ResolveResult, error)
	MarkProcessed(ctx context.Context, rawURL, status, productID string) error
}

// TargetHandler extracts product observations from a target page. Page
// fetching and parsing live outside this module.
type TargetHandler interface {
	HandleTarget(ctx context.Context, target discovery.DiscoveryTarget) ([]discovery.Observation, error)
}

// Config controls Worker behavior.
type Config struct {
	QueriesPerRun   int
	MaxTargets      int
	ResultsPerQuery int
	// Topic receives one message per new target. Empty disables publishing.
	Topic string
}

// Summary reports what one RunCategory call did.
type Summary struct {
	Category         string                      `json:"category"`
	Queries          int                         `json:"queries"`
	Searches         int                         `json:"searches"`
	SearchErrors     int                         `json:"search_errors"`
	BudgetExhausted  bool                        `json:"budget_exhausted"`
	NewURLs          int                         `json:"new_urls"`
	KnownURLs        int                         `json:"known_urls"`
	ProductsCreated  int                         `json:"products_created"`
	ProductsAttached int                         `json:"products_attached"`
	Conflicts        int                         `json:"conflicts"`
	Targets          []discovery.DiscoveryTarget `json:"targets"`
}

// Worker executes the discovery pipeline.
type Worker struct {
	scheduler QueryScheduler
	searcher  searchapi.Searcher
	extractor TargetExtractor
	registrar Registrar
	handler   TargetHandler
	publisher discovery.Publisher
	clock     discovery.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. handler and publisher may be nil.
func New(
	scheduler QueryScheduler,
	searcher searchapi.Searcher,
	targets TargetExtractor,
	registrar Registrar,
	handler TargetHandler,
	publisher discovery.Publisher,
	clock discovery.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueriesPerRun <= 0 {
		cfg.QueriesPerRun = 5
	}
	if cfg.MaxTargets <= 0 {
		cfg.MaxTargets = 10
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = 10
	}
	return &Worker{
		scheduler: scheduler,
		searcher:  searcher,
		extractor: targets,
		registrar: registrar,
		handler:   handler,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Config returns the worker's effective configuration.
func (w *Worker) Config() Config { return w.cfg }

// WithConfig returns a copy of the worker using cfg. Zero limits keep the
// current values; Topic is always taken from cfg.
func (w *Worker) WithConfig(cfg Config) *Worker {
	cp := *w
	if cfg.QueriesPerRun > 0 {
		cp.cfg.QueriesPerRun = cfg.QueriesPerRun
	}
	if cfg.MaxTargets > 0 {
		cp.cfg.MaxTargets = cfg.MaxTargets
	}
	if cfg.ResultsPerQuery > 0 {
		cp.cfg.ResultsPerQuery = cfg.ResultsPerQuery
	}
	cp.cfg.Topic = cfg.Topic
	return &cp
}

// RunCategory runs one discovery pass. Searches stop as soon as the budget
// refuses a call; targets found so far are still recorded.
func (w *Worker) RunCategory(ctx context.Context, category string) (Summary, error) {
	summary := Summary{Category: category}
	logger := w.logger.With(zap.String("category", category))

	queries, err := w.scheduler.NextQueries(ctx, category, w.cfg.QueriesPerRun)
	if err != nil {
		return summary, fmt.Errorf("next queries: %w", err)
	}
	summary.Queries = len(queries)
	if len(queries) == 0 {
		logger.Info("no queries due")
		return summary, nil
	}

	w.extractor.ClearSeenCache()
	var all []discovery.DiscoveryTarget
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		targets, err := w.search(ctx, q)
		if errors.Is(err, searchapi.ErrBudgetExhausted) {
			summary.BudgetExhausted = true
			logger.Info("stopping discovery: budget exhausted", zap.String("query", q))
			break
		}
		if err != nil {
			summary.SearchErrors++
			logger.Warn("discovery search failed", zap.String("query", q), zap.Error(err))
			continue
		}
		summary.Searches++
		all = append(all, targets...)
	}

	all = extractor.DeduplicateAcrossSearches(all)

	for _, t := range all {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := w.handleTarget(ctx, t, &summary); err != nil {
			logger.Warn("target failed", zap.String("url", t.URL), zap.Error(err))
		}
	}

	logger.Info("discovery finished",
		zap.Int("searches", summary.Searches),
		zap.Int("new_urls", summary.NewURLs),
		zap.Int("known_urls", summary.KnownURLs),
		zap.Int("products_created", summary.ProductsCreated),
		zap.Bool("budget_exhausted", summary.BudgetExhausted),
	)
	return summary, nil
}

// RunCategories runs each category in turn, stopping early once the budget is exhausted.
func (w *Worker) RunCategories(ctx context.Context, categories []string) ([]Summary, error) {
	out := make([]Summary, 0, len(categories))
	for _, c := range categories {
		s, err := w.RunCategory(ctx, c)
		if err != nil {
			return out, fmt.Errorf("category %s: %w", c, err)
		}
		out = append(out, s)
		if s.BudgetExhausted {
			break
		}
	}
	return out, nil
}

func (w *Worker) search(ctx context.Context, q string) ([]discovery.DiscoveryTarget, error) {
	resp, err := w.searcher.Search(ctx, searchapi.Request{
		Query:  q,
		Engine: searchapi.EngineOrganic,
		Num:    w.cfg.ResultsPerQuery,
	})
	if err != nil {
		return nil, err
	}
	if err := w.scheduler.MarkExecuted(ctx, q); err != nil {
		w.logger.Warn("mark query executed failed", zap.String("query", q), zap.Error(err))
	}
	targets := w.extractor.ExtractTargets(resp.Organic, w.cfg.MaxTargets)
	for i := range targets {
		targets[i].Query = q
	}
	return targets, nil
}

func (w *Worker) handleTarget(ctx context.Context, t discovery.DiscoveryTarget, summary *Summary) error {
	res, err := w.registrar.ObserveURL(ctx, t.URL, "", false)
	if err != nil {
		return fmt.Errorf("observe url: %w", err)
	}
	if !res.Created {
		summary.KnownURLs++
		return nil
	}
	summary.NewURLs++
	summary.Targets = append(summary.Targets, t)
	w.publishTarget(ctx, t)

	if w.handler == nil {
		return nil
	}
	observations, err := w.handler.HandleTarget(ctx, t)
	if err != nil {
		if markErr := w.registrar.MarkProcessed(ctx, t.URL, discovery.URLSkipped, ""); markErr != nil {
			w.logger.Warn("mark url skipped failed", zap.String("url", t.URL), zap.Error(markErr))
		}
		return fmt.Errorf("handle target: %w", err)
	}

	var productID string
	for _, obs := range observations {
		if obs.SourceURL == "" {
			obs.SourceURL = t.URL
		}
		resolved, err := w.registrar.ResolveProduct(ctx, obs)
		if err != nil {
			w.logger.Warn("resolve product failed", zap.String("url", t.URL), zap.Error(err))
			continue
		}
		if resolved.Created {
			summary.ProductsCreated++
		} else {
			summary.ProductsAttached++
		}
		summary.Conflicts += len(resolved.Conflicts)
		if productID == "" {
			productID = resolved.Product.ID
		}
	}
	if err := w.registrar.MarkProcessed(ctx, t.URL, discovery.URLProcessed, productID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (w *Worker) publishTarget(ctx context.Context, t discovery.DiscoveryTarget) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"url":            t.URL,
		"domain":         t.Domain,
		"title":          t.Title,
		"priority_score": t.PriorityScore,
		"query":          t.Query,
		"timestamp":      w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("publish target failed", zap.String("url", t.URL), zap.Error(err))
		return
	}
	w.logger.Debug("target published", zap.String("url", t.URL), zap.Int("priority_score", t.PriorityScore))
}
