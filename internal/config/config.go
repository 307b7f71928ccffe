// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/budget"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/dedup"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/enrichment"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/extractor"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/finder"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/scheduler"
)

// EnvPrefix prefixes every environment override, e.g. SPIRITS_SEARCH_API_KEY.
const EnvPrefix = "SPIRITS"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Search     SearchConfig     `mapstructure:"search"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Cache      CacheConfig      `mapstructure:"cache"`
	DB         DBConfig         `mapstructure:"db"`
	Blob       BlobConfig       `mapstructure:"blob"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Finders    FindersConfig    `mapstructure:"finders"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
}

// ServerConfig controls the operational HTTP server.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SearchConfig configures the search API client.
type SearchConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	APIName    string        `mapstructure:"api_name"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RPS        float64       `mapstructure:"rps"`
	Burst      int           `mapstructure:"burst"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
	UserAgent  string        `mapstructure:"user_agent"`
	// Archive stores every raw response in the blob store.
	Archive bool `mapstructure:"archive"`
}

// LimitConfig is one API's quota.
type LimitConfig struct {
	Hourly  int64 `mapstructure:"hourly"`
	Monthly int64 `mapstructure:"monthly"`
}

// BudgetConfig holds API quotas.
type BudgetConfig struct {
	HourlyLimit  int64                  `mapstructure:"hourly_limit"`
	MonthlyLimit int64                  `mapstructure:"monthly_limit"`
	PerAPI       map[string]LimitConfig `mapstructure:"per_api"`
	LowThreshold float64                `mapstructure:"low_threshold"`
}

// CacheConfig selects the shared cache.
type CacheConfig struct {
	Type      string `mapstructure:"type"`
	RedisURL  string `mapstructure:"redis_url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DBConfig selects the product store.
type DBConfig struct {
	Type     string `mapstructure:"type"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// BlobConfig selects where raw search payloads are archived.
type BlobConfig struct {
	Type    string `mapstructure:"type"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds publish-subscribe notification settings.
type PubSubConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ProjectID      string `mapstructure:"project_id"`
	Topic          string `mapstructure:"topic"`
	DiscoveryTopic string `mapstructure:"discovery_topic"`
}

// DiscoveryConfig tunes the scheduler, extractor and worker.
type DiscoveryConfig struct {
	Templates       scheduler.Templates `mapstructure:"templates"`
	Cooldown        time.Duration       `mapstructure:"cooldown"`
	PriorityDomains []string            `mapstructure:"priority_domains"`
	ExcludedDomains []string            `mapstructure:"excluded_domains"`
	Keywords        []string            `mapstructure:"keywords"`
	QueriesPerRun   int                 `mapstructure:"queries_per_run"`
	MaxTargets      int                 `mapstructure:"max_targets"`
	ResultsPerQuery int                 `mapstructure:"results_per_query"`
}

// FindersConfig tunes the source finders.
type FindersConfig struct {
	MaxResults        enrichment.Limits   `mapstructure:"max_results"`
	ReviewRules       []finder.ReviewRule `mapstructure:"review_rules"`
	ImageMinWidth     int                 `mapstructure:"image_min_width"`
	ImageMinHeight    int                 `mapstructure:"image_min_height"`
	ArticleMaxAgeDays int                 `mapstructure:"article_max_age_days"`
}

// EnrichmentConfig tunes the orchestrator.
type EnrichmentConfig struct {
	Workers           int              `mapstructure:"workers"`
	ParallelFinders   bool             `mapstructure:"parallel_finders"`
	Categories        enrichment.Flags `mapstructure:"categories"`
	CompleteThreshold int              `mapstructure:"complete_threshold"`
	EnrichedThreshold int              `mapstructure:"enriched_threshold"`
}

// DedupConfig tunes URL normalization.
type DedupConfig struct {
	TrackingParams []string `mapstructure:"tracking_params"`
}

// Load builds a Config from an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	v.SetDefault("search.base_url", "https://serpapi.com")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.api_name", "serpapi")
	v.SetDefault("search.timeout", "30s")
	v.SetDefault("search.rps", 2.0)
	v.SetDefault("search.burst", 2)
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.backoff", "500ms")
	v.SetDefault("search.user_agent", "spirits-discovery/1.0")
	v.SetDefault("search.archive", false)

	v.SetDefault("budget.hourly_limit", 100)
	v.SetDefault("budget.monthly_limit", 5000)
	v.SetDefault("budget.low_threshold", budget.DefaultLowThreshold)

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "spirits:")

	v.SetDefault("db.type", "memory")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", false)

	v.SetDefault("blob.type", "none")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("blob.prefix", "raw")
	v.SetDefault("blob.base_dir", "data/archive")

	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "spirits-enrichment")
	v.SetDefault("pubsub.discovery_topic", "spirits-discovery-targets")

	ext := extractor.DefaultConfig()
	v.SetDefault("discovery.templates", templateDefaults())
	v.SetDefault("discovery.cooldown", "24h")
	v.SetDefault("discovery.priority_domains", ext.PriorityDomains)
	v.SetDefault("discovery.excluded_domains", ext.ExcludedDomains)
	v.SetDefault("discovery.keywords", ext.Keywords)
	v.SetDefault("discovery.queries_per_run", 5)
	v.SetDefault("discovery.max_targets", 10)
	v.SetDefault("discovery.results_per_query", 10)

	limits := enrichment.DefaultLimits()
	v.SetDefault("finders.max_results.prices", limits.Prices)
	v.SetDefault("finders.max_results.reviews", limits.Reviews)
	v.SetDefault("finders.max_results.images", limits.Images)
	v.SetDefault("finders.max_results.articles", limits.Articles)
	v.SetDefault("finders.review_rules", reviewRuleDefaults())
	v.SetDefault("finders.image_min_width", finder.DefaultMinImageWidth)
	v.SetDefault("finders.image_min_height", finder.DefaultMinImageHeight)
	v.SetDefault("finders.article_max_age_days", finder.DefaultMaxArticleAge)

	v.SetDefault("enrichment.workers", 4)
	v.SetDefault("enrichment.parallel_finders", false)
	v.SetDefault("enrichment.categories.prices", true)
	v.SetDefault("enrichment.categories.reviews", true)
	v.SetDefault("enrichment.categories.images", true)
	v.SetDefault("enrichment.categories.articles", true)
	v.SetDefault("enrichment.complete_threshold", 80)
	v.SetDefault("enrichment.enriched_threshold", 40)

	v.SetDefault("dedup.tracking_params", dedup.DefaultTrackingParams())
}

// templateDefaults converts the built-in templates to plain maps so Viper can merge file overrides.
func templateDefaults() map[string]any {
	out := make(map[string]any)
	for category, groups := range scheduler.DefaultTemplates() {
		g := make(map[string]any, len(groups))
		for name, templates := range groups {
			g[name] = slices.Clone(templates)
		}
		out[category] = g
	}
	return out
}

func reviewRuleDefaults() []map[string]any {
	rules := finder.DefaultReviewRules()
	out := make([]map[string]any, 0, len(rules))
	for _, r := range rules {
		out = append(out, map[string]any{
			"domain":    r.Domain,
			"pattern":   r.Pattern,
			"max_score": r.MaxScore,
		})
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Search.BaseURL == "" {
		return fmt.Errorf("search.base_url is required")
	}
	if c.Search.APIName == "" {
		return fmt.Errorf("search.api_name is required")
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search.timeout must be > 0")
	}
	if c.Budget.HourlyLimit <= 0 || c.Budget.MonthlyLimit <= 0 {
		return fmt.Errorf("budget.hourly_limit and budget.monthly_limit must be > 0")
	}
	if c.Budget.LowThreshold < 0 || c.Budget.LowThreshold >= 1 {
		return fmt.Errorf("budget.low_threshold must be in [0, 1)")
	}
	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required when cache.type is redis")
		}
	default:
		return fmt.Errorf("cache.type must be memory or redis, got %q", c.Cache.Type)
	}
	switch c.DB.Type {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.type is postgres")
		}
	default:
		return fmt.Errorf("db.type must be memory or postgres, got %q", c.DB.Type)
	}
	switch c.Blob.Type {
	case "none", "memory":
	case "local":
		if c.Blob.BaseDir == "" {
			return fmt.Errorf("blob.base_dir is required when blob.type is local")
		}
	case "gcs":
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required when blob.type is gcs")
		}
	default:
		return fmt.Errorf("blob.type must be none, memory, local or gcs, got %q", c.Blob.Type)
	}
	if c.Search.Archive && c.Blob.Type == "none" {
		return fmt.Errorf("search.archive requires a blob.type")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	if len(c.Discovery.Templates) == 0 {
		return fmt.Errorf("discovery.templates must define at least one category")
	}
	if c.Enrichment.Workers <= 0 {
		return fmt.Errorf("enrichment.workers must be > 0")
	}
	if c.Enrichment.EnrichedThreshold <= 0 || c.Enrichment.CompleteThreshold <= c.Enrichment.EnrichedThreshold ||
		c.Enrichment.CompleteThreshold > 100 {
		return fmt.Errorf("enrichment thresholds must satisfy 0 < enriched < complete <= 100")
	}
	return nil
}

// BudgetManagerConfig converts the quota section for the budget manager.
func (c Config) BudgetManagerConfig() budget.Config {
	per := make(map[string]budget.Limits, len(c.Budget.PerAPI))
	for api, l := range c.Budget.PerAPI {
		per[api] = budget.Limits{Hourly: l.Hourly, Monthly: l.Monthly}
	}
	return budget.Config{
		Default:      budget.Limits{Hourly: c.Budget.HourlyLimit, Monthly: c.Budget.MonthlyLimit},
		PerAPI:       per,
		LowThreshold: c.Budget.LowThreshold,
	}
}

// ExtractorConfig returns the ranking tables.
func (c Config) ExtractorConfig() extractor.Config {
	return extractor.Config{
		PriorityDomains: c.Discovery.PriorityDomains,
		ExcludedDomains: c.Discovery.ExcludedDomains,
		Keywords:        c.Discovery.Keywords,
	}
}

// Categories lists the configured discovery categories in sorted order.
func (c Config) Categories() []string {
	out := make([]string, 0, len(c.Discovery.Templates))
	for k := range c.Discovery.Templates {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
