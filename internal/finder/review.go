package finder

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/extractor"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
)

// Confidence assigned to scores depending on which rule matched.
const (
	DomainRuleConfidence  = 0.9
	GenericRuleConfidence = 0.6
)

// ReviewRule is a per-domain score pattern. The pattern's first capture group
// holds the score, which is out of MaxScore.
type ReviewRule struct {
	Domain   string  `mapstructure:"domain"`
	Pattern  string  `mapstructure:"pattern"`
	MaxScore float64 `mapstructure:"max_score"`
}

// DefaultReviewRules returns the built-in rule table.
func DefaultReviewRules() []ReviewRule {
	return []ReviewRule{
		{Domain: "whiskyadvocate.com", Pattern: `(?i)(\d{2,3})\s*points`, MaxScore: 100},
		{Domain: "winemag.com", Pattern: `(?i)(\d{2,3})\s*(?:points|pts)`, MaxScore: 100},
		{Domain: "whiskybase.com", Pattern: `(\d{2,3}(?:\.\d+)?)\s*/\s*100`, MaxScore: 100},
		{Domain: "distiller.com", Pattern: `(?i)(?:expert\s+)?score:?\s*(\d{2,3})`, MaxScore: 100},
		{Domain: "masterofmalt.com", Pattern: `(?i)(\d(?:\.\d+)?)\s*(?:/\s*5|out of 5|stars?)`, MaxScore: 5},
		{Domain: "thewhiskyexchange.com", Pattern: `(?i)(\d(?:\.\d+)?)\s*(?:/\s*5|out of 5|stars?)`, MaxScore: 5},
	}
}

type scoreRule struct {
	domain  string
	re      *regexp.Regexp
	max     float64
	minimum float64
}

// Generic patterns tried in order when no domain rule matches.
var genericRules = []scoreRule{
	{re: regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*/\s*100\b`), max: 100},
	{re: regexp.MustCompile(`(?i)(\d(?:\.\d+)?)\s*(?:/|out of)\s*5\b`), max: 5},
	{re: regexp.MustCompile(`(?i)(\d(?:\.\d+)?)\s*stars?\b`), max: 5},
	{re: regexp.MustCompile(`(?i)(\d{2,3}(?:\.\d+)?)\s*(?:points|pts)\b`), max: 100, minimum: 50},
}

// ReviewFinder extracts review scores from organic search snippets.
type ReviewFinder struct {
	search searchapi.Searcher
	rules  []scoreRule
	clock  discovery.Clock
	logger *zap.Logger
}

// NewReviewFinder compiles the rule table. Nil rules use DefaultReviewRules.
func NewReviewFinder(s searchapi.Searcher, rules []ReviewRule, clock discovery.Clock, logger *zap.Logger) (*ReviewFinder, error) {
	if rules == nil {
		rules = DefaultReviewRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	compiled := make([]scoreRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile review rule for %s: %w", r.Domain, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("review rule for %s needs a capture group", r.Domain)
		}
		if r.MaxScore <= 0 {
			return nil, fmt.Errorf("review rule for %s: max_score must be > 0", r.Domain)
		}
		compiled = append(compiled, scoreRule{
			domain: strings.ToLower(strings.TrimPrefix(r.Domain, "www.")),
			re:     re,
			max:    r.MaxScore,
		})
	}
	return &ReviewFinder{search: s, rules: compiled, clock: clock, logger: logger}, nil
}

// Find searches "{name} review" and keeps results that carry a score.
func (f *ReviewFinder) Find(ctx context.Context, p *discovery.Product, maxResults int) Result[discovery.RatingEntry] {
	var q string
	if p != nil {
		q = query(p.Name, "review")
	}
	resp, err := search(ctx, f.search, f.logger, NameReview, p, searchapi.Request{
		Query: q, Engine: searchapi.EngineOrganic, Num: max(maxResults*2, 10),
	})
	if err != nil {
		return Result[discovery.RatingEntry]{Err: err}
	}

	now := f.clock.Now()
	entries := make([]discovery.RatingEntry, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		domain := extractor.Domain(r.Link)
		score, maxScore, confidence, ok := f.ExtractScore(domain, r.Snippet)
		if !ok {
			score, maxScore, confidence, ok = f.ExtractScore(domain, r.Title)
		}
		if !ok {
			continue
		}
		entries = append(entries, discovery.RatingEntry{
			Source:     domain,
			Score:      score,
			MaxScore:   maxScore,
			URL:        r.Link,
			Title:      r.Title,
			Snippet:    r.Snippet,
			Confidence: confidence,
			FoundAt:    now,
		})
	}
	return Result[discovery.RatingEntry]{Entries: limit(entries, maxResults)}
}

// ExtractScore applies the rule for domain, then the generic cascade. The
// first pattern yielding a plausible score wins.
func (f *ReviewFinder) ExtractScore(domain, text string) (score, maxScore, confidence float64, ok bool) {
	if strings.TrimSpace(text) == "" {
		return 0, 0, 0, false
	}
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	for _, r := range f.rules {
		if domain != r.domain && !strings.HasSuffix(domain, "."+r.domain) {
			continue
		}
		if s, ok := r.match(text); ok {
			return s, r.max, DomainRuleConfidence, true
		}
	}
	for _, r := range genericRules {
		if s, ok := r.match(text); ok {
			return s, r.max, GenericRuleConfidence, true
		}
	}
	return 0, 0, 0, false
}

func (r scoreRule) match(text string) (float64, bool) {
	m := r.re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < r.minimum || v > r.max || v < 0 {
		return 0, false
	}
	return v, true
}
