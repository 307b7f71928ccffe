// Package app builds the pipeline from configuration and owns the
// lifetime of its long-lived clients.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/api"
	gcsblob "github.com/troeske/spiritswise-web-crawler-sub002/internal/blob/gcs"
	localblob "github.com/troeske/spiritswise-web-crawler-sub002/internal/blob/local"
	memoryblob "github.com/troeske/spiritswise-web-crawler-sub002/internal/blob/memory"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/budget"
	memorycache "github.com/troeske/spiritswise-web-crawler-sub002/internal/cache/memory"
	rediscache "github.com/troeske/spiritswise-web-crawler-sub002/internal/cache/redis"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/clock/system"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/config"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/conflict"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/dedup"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/enrichment"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/extractor"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/finder"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/id/uuid"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/metrics"
	memorypublisher "github.com/troeske/spiritswise-web-crawler-sub002/internal/publisher/memory"
	gcppublisher "github.com/troeske/spiritswise-web-crawler-sub002/internal/publisher/pubsub"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/scheduler"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/scoring"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
	memorystore "github.com/troeske/spiritswise-web-crawler-sub002/internal/storage/memory"
	pgstore "github.com/troeske/spiritswise-web-crawler-sub002/internal/storage/postgres"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/worker"
)

// devPublisherRetain caps the in-memory publisher used when Pub/Sub is disabled.
const devPublisherRetain = 1000

// Option customizes Build.
type Option func(*options)

type options struct {
	clock      discovery.Clock
	httpClient *http.Client
	handler    worker.TargetHandler
}

// WithClock overrides the system clock.
func WithClock(c discovery.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithHTTPClient sets the HTTP client used for search API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTargetHandler plugs in page extraction for discovered targets.
func WithTargetHandler(h worker.TargetHandler) Option {
	return func(o *options) { o.handler = h }
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  discovery.Clock

	cache     discovery.Cache
	products  discovery.ProductStore
	urls      discovery.CrawledURLStore
	blob      discovery.BlobStore
	publisher discovery.Publisher

	budget     *budget.Manager
	searcher   *searchapi.Budgeted
	scheduler  *scheduler.Scheduler
	registrar  *dedup.Registrar
	enrichment *enrichment.Service
	worker     *worker.Worker

	checks  map[string]api.ReadinessCheck
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Build creates the application's dependencies. Clients opened before a
// failure are closed before Build returns.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}
	metrics.Init()

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  o.clock,
		checks: map[string]api.ReadinessCheck{},
	}
	a.logger.Info("building application dependencies",
		zap.String("cache", cfg.Cache.Type),
		zap.String("db", cfg.DB.Type),
		zap.String("blob", cfg.Blob.Type),
		zap.Bool("pubsub", cfg.PubSub.Enabled),
	)

	steps := []func(context.Context) error{
		a.setupCache,
		a.setupStores,
		a.setupBlob,
		a.setupPublisher,
		func(context.Context) error { return a.setupSearch(o.httpClient) },
		func(context.Context) error { return a.setupEnrichment() },
		func(context.Context) error { return a.setupDiscovery(o.handler) },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			a.closeInfrastructure()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) setupCache(ctx context.Context) error {
	switch a.cfg.Cache.Type {
	case "redis":
		c, err := rediscache.New(ctx, rediscache.Config{URL: a.cfg.Cache.RedisURL, KeyPrefix: a.cfg.Cache.KeyPrefix})
		if err != nil {
			return fmt.Errorf("redis cache init failed: %w", err)
		}
		a.cache = c
		a.checks["cache"] = c.Ping
		a.addCloser("redis", c.Close)
		a.logger.Info("using redis cache")
	default:
		a.cache = memorycache.New(a.clock)
		a.logger.Warn("using in-memory cache; budgets and cooldowns are per process")
	}
	return nil
}

func (a *App) setupStores(ctx context.Context) error {
	switch a.cfg.DB.Type {
	case "postgres":
		s, err := pgstore.New(ctx, pgstore.Config{DSN: a.cfg.DB.DSN, MaxConns: a.cfg.DB.MaxConns})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.addCloser("postgres", func() error { s.Close(); return nil })
		if a.cfg.DB.Migrate {
			if err := s.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("postgres schema failed: %w", err)
			}
			a.logger.Info("postgres schema applied")
		}
		a.products, a.urls = s, s
		a.checks["db"] = s.Ping
		a.logger.Info("using postgres product store")
	default:
		s := memorystore.NewProductStore()
		a.products, a.urls = s, s
		a.logger.Warn("using in-memory product store; data is lost on exit")
	}
	return nil
}

func (a *App) setupBlob(ctx context.Context) error {
	switch a.cfg.Blob.Type {
	case "gcs":
		s, err := gcsblob.Connect(ctx, gcsblob.Config{Bucket: a.cfg.Blob.Bucket, Prefix: a.cfg.Blob.Prefix})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.blob = s
		a.addCloser("gcs", s.Close)
		a.logger.Info("using GCS blob store", zap.String("bucket", a.cfg.Blob.Bucket))
	case "local":
		s, err := localblob.New(a.cfg.Blob.BaseDir)
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blob = s
		a.logger.Info("using local blob store", zap.String("path", a.cfg.Blob.BaseDir))
	case "memory":
		a.blob = memoryblob.New()
		a.logger.Info("using in-memory blob store")
	default:
		a.logger.Debug("blob archiving disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		a.logger.Warn("Pub/Sub disabled, using in-memory publisher")
		a.publisher = memorypublisher.NewBounded(devPublisherRetain)
		return nil
	}
	p, err := gcppublisher.Connect(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = p
	a.addCloser("pubsub", p.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupSearch(hc *http.Client) error {
	sc := a.cfg.Search
	var opts []searchapi.Option
	if hc != nil {
		opts = append(opts, searchapi.WithHTTPClient(hc))
	}
	if sc.Archive {
		if a.blob == nil {
			return fmt.Errorf("search archive requires a blob store")
		}
		opts = append(opts, searchapi.WithArchive(a.blob, a.clock))
	}
	client := searchapi.NewClient(searchapi.Config{
		BaseURL:    sc.BaseURL,
		APIKey:     sc.APIKey,
		Timeout:    sc.Timeout,
		RPS:        sc.RPS,
		Burst:      sc.Burst,
		MaxRetries: sc.MaxRetries,
		Backoff:    sc.Backoff,
		UserAgent:  sc.UserAgent,
	}, a.logger.Named("searchapi"), opts...)

	a.budget = budget.NewManager(a.cache, a.clock, a.cfg.BudgetManagerConfig(), a.logger.Named("budget"))
	a.searcher = searchapi.NewBudgeted(client, a.budget, sc.APIName, a.logger.Named("searchapi"))
	if sc.APIKey == "" {
		a.logger.Warn("search.api_key is empty; search calls will be rejected upstream")
	}
	return nil
}

func (a *App) setupEnrichment() error {
	fc := a.cfg.Finders
	reviews, err := finder.NewReviewFinder(a.searcher, fc.ReviewRules, a.clock, a.logger.Named("finder"))
	if err != nil {
		return fmt.Errorf("review finder init failed: %w", err)
	}
	finders := enrichment.Finders{
		Prices:   finder.NewPriceFinder(a.searcher, a.clock, a.logger.Named("finder")),
		Reviews:  reviews,
		Images:   finder.NewImageFinder(a.searcher, fc.ImageMinWidth, fc.ImageMinHeight, a.logger.Named("finder")),
		Articles: finder.NewArticleFinder(a.searcher, fc.ArticleMaxAgeDays, a.clock, a.logger.Named("finder")),
	}
	ec := a.cfg.Enrichment
	orch, err := enrichment.NewOrchestrator(finders, a.products, a.publisher, a.clock, enrichment.Config{
		Limits:          fc.MaxResults,
		Thresholds:      scoring.Thresholds{Complete: ec.CompleteThreshold, Enriched: ec.EnrichedThreshold},
		Workers:         ec.Workers,
		ParallelFinders: ec.ParallelFinders,
		Topic:           a.cfg.PubSub.Topic,
	}, a.logger.Named("enrichment"))
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}
	a.enrichment = enrichment.NewService(orch, a.products, ec.Categories, a.logger.Named("enrichment"))
	return nil
}

func (a *App) setupDiscovery(handler worker.TargetHandler) error {
	dc := a.cfg.Discovery
	a.scheduler = scheduler.New(a.cache, a.clock, dc.Templates, a.logger.Named("scheduler"),
		scheduler.WithCooldown(dc.Cooldown))

	registrar, err := dedup.NewRegistrar(dedup.RegistrarDeps{
		URLs:       a.urls,
		Products:   a.products,
		Normalizer: dedup.NewNormalizer(a.cfg.Dedup.TrackingParams),
		Detector:   conflict.NewDetector(conflict.DefaultTolerances()),
		Clock:      a.clock,
		IDs:        uuid.New(),
		Logger:     a.logger.Named("dedup"),
	})
	if err != nil {
		return fmt.Errorf("registrar init failed: %w", err)
	}
	a.registrar = registrar

	a.worker = worker.New(
		a.scheduler,
		a.searcher,
		extractor.New(a.cfg.ExtractorConfig(), a.logger.Named("extractor")),
		registrar,
		handler,
		a.publisher,
		a.clock,
		worker.Config{
			QueriesPerRun:   dc.QueriesPerRun,
			MaxTargets:      dc.MaxTargets,
			ResultsPerQuery: dc.ResultsPerQuery,
			Topic:           a.cfg.PubSub.DiscoveryTopic,
		},
		a.logger.Named("worker"),
	)
	return nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Budget returns the quota manager.
func (a *App) Budget() *budget.Manager { return a.budget }

// Enrichment returns the enrichment entry points.
func (a *App) Enrichment() *enrichment.Service { return a.enrichment }

// Worker returns the discovery worker.
func (a *App) Worker() *worker.Worker { return a.worker }

// Products returns the product store.
func (a *App) Products() discovery.ProductStore { return a.products }

// Registrar returns the dedup registrar.
func (a *App) Registrar() *dedup.Registrar { return a.registrar }

// Categories lists the configured discovery categories.
func (a *App) Categories() []string { return a.scheduler.Categories() }

// Publisher returns the notification publisher.
func (a *App) Publisher() discovery.Publisher { return a.publisher }

// Handler builds the operational HTTP handler.
func (a *App) Handler() http.Handler {
	srv := api.NewServer(a.enrichment, a.budget, api.Options{
		APIKey:         a.cfg.Server.APIKey,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		Checks:         a.checks,
	}, a.logger.Named("api"))
	return srv.Handler()
}

// Run serves the operational API and blocks until the context is canceled
// or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("serve http: %w", err)
	default:
		return nil
	}
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}
