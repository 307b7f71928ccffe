// Package extractor turns organic search results into ranked discovery targets.
package extractor

import (
	"net/url"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/metrics"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
)

// Scoring weights.
const (
	BaseScore        = 50
	PriorityBonus    = 30
	MaxPositionBonus = 20
	PositionStep     = 2
	KeywordBonus     = 5
)

// Config lists the domain and keyword tables used for ranking.
type Config struct {
	PriorityDomains []string
	ExcludedDomains []string
	Keywords        []string
}

// DefaultConfig returns the built-in ranking tables.
func DefaultConfig() Config {
	return Config{
		PriorityDomains: []string{
			"whiskyadvocate.com", "masterofmalt.com", "thewhiskyexchange.com", "distiller.com",
			"whiskybase.com", "difford", "vinepair.com", "liquor.com", "winemag.com",
		},
		ExcludedDomains: []string{
			"facebook.com", "instagram.com", "twitter.com", "x.com", "tiktok.com", "pinterest.com",
			"youtube.com", "reddit.com", "amazon.com", "ebay.com", "wikipedia.org",
		},
		Keywords: []string{"review", "rating", "tasting", "best", "top"},
	}
}

// Extractor ranks search results. Its seen-set spans calls until ClearSeenCache.
type Extractor struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	priority []string
	excluded *domainMatcher
	keywords []string
	logger   *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return &Extractor{
		seen:     make(map[string]struct{}),
		priority: lower(cfg.PriorityDomains),
		excluded: newDomainMatcher(cfg.ExcludedDomains),
		keywords: lower(cfg.Keywords),
		logger:   logger,
	}
}

// ExtractTargets returns at most maxTargets candidates (all when maxTargets <= 0)
// sorted by descending priority. Results with empty links, excluded domains, or links already seen
// by this extractor are skipped. Every accepted link is remembered, including
// ones cut by maxTargets.
func (e *Extractor) ExtractTargets(results []searchapi.OrganicResult, maxTargets int) []discovery.DiscoveryTarget {
	e.mu.Lock()
	defer e.mu.Unlock()

	targets := make([]discovery.DiscoveryTarget, 0, len(results))
	for i, r := range results {
		link := strings.TrimSpace(r.Link)
		if link == "" {
			continue
		}
		if _, ok := e.seen[link]; ok {
			continue
		}
		domain := Domain(link)
		if e.excluded.Matches(domain) {
			e.logger.Debug("skipping excluded domain", zap.String("domain", domain))
			continue
		}
		e.seen[link] = struct{}{}

		position := r.Position
		if position <= 0 {
			position = i + 1
		}
		targets = append(targets, discovery.DiscoveryTarget{
			URL:           link,
			Title:         r.Title,
			Snippet:       r.Snippet,
			Domain:        domain,
			Position:      position,
			PriorityScore: e.Score(domain, position, r.Snippet),
		})
	}

	slices.SortStableFunc(targets, func(a, b discovery.DiscoveryTarget) int {
		return b.PriorityScore - a.PriorityScore
	})
	if maxTargets > 0 && len(targets) > maxTargets {
		targets = targets[:maxTargets]
	}
	metrics.ObserveTargets(len(targets))
	return targets
}

// Score computes the priority of a result at the 1-based search position.
func (e *Extractor) Score(domain string, position int, snippet string) int {
	score := BaseScore
	domain = strings.ToLower(domain)
	for _, p := range e.priority {
		if strings.Contains(domain, p) {
			score += PriorityBonus
			break
		}
	}
	score += max(0, MaxPositionBonus-PositionStep*(position-1))
	text := strings.ToLower(snippet)
	for _, kw := range e.keywords {
		if strings.Contains(text, kw) {
			score += KeywordBonus
		}
	}
	return score
}

// ClearSeenCache forgets every link seen so far.
func (e *Extractor) ClearSeenCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = make(map[string]struct{})
}

// DeduplicateAcrossSearches keeps the first target for each URL, preserving order.
func DeduplicateAcrossSearches(all []discovery.DiscoveryTarget) []discovery.DiscoveryTarget {
	seen := make(map[string]struct{}, len(all))
	out := make([]discovery.DiscoveryTarget, 0, len(all))
	for _, t := range all {
		if _, dup := seen[t.URL]; dup {
			continue
		}
		seen[t.URL] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Domain returns the lowercase host of rawURL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
