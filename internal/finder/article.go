package finder

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
)

// DefaultMaxArticleAge is the press window in days.
const DefaultMaxArticleAge = 365

// UnknownAge is assigned to dates that cannot be parsed; it is beyond any window.
const UnknownAge = math.MaxInt32

var relativeDate = regexp.MustCompile(`^(\d+|an?|one)\s+(second|sec|minute|min|hour|hr|day|week|month|year)s?\s+ago$`)

var unitDays = map[string]int{
	"second": 0, "sec": 0, "minute": 0, "min": 0, "hour": 0, "hr": 0,
	"day": 1, "week": 7, "month": 30, "year": 365,
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006, 03:04 PM, -0700 MST",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2006",
}

// ArticleFinder collects recent press mentions from the news engine.
type ArticleFinder struct {
	search searchapi.Searcher
	maxAge int
	clock  discovery.Clock
	logger *zap.Logger
}

// NewArticleFinder builds an ArticleFinder. A non-positive maxAgeDays uses DefaultMaxArticleAge.
func NewArticleFinder(s searchapi.Searcher, maxAgeDays int, clock discovery.Clock, logger *zap.Logger) *ArticleFinder {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxArticleAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleFinder{search: s, maxAge: maxAgeDays, clock: clock, logger: logger}
}

// Find searches "{brand} {name}" on the news engine and keeps articles no
// older than the configured window.
func (f *ArticleFinder) Find(ctx context.Context, p *discovery.Product, maxResults int) Result[discovery.ArticleEntry] {
	var q string
	if p != nil {
		q = brandedName(p)
	}
	resp, err := search(ctx, f.search, f.logger, NameArticle, p, searchapi.Request{
		Query: q, Engine: searchapi.EngineNews, Num: max(maxResults*2, 10),
	})
	if err != nil {
		return Result[discovery.ArticleEntry]{Err: err}
	}

	now := f.clock.Now()
	entries := make([]discovery.ArticleEntry, 0, len(resp.News))
	for _, r := range resp.News {
		if r.Link == "" {
			continue
		}
		age := ParseAgeDays(r.Date, now)
		if age > f.maxAge {
			continue
		}
		entries = append(entries, discovery.ArticleEntry{
			Title:        r.Title,
			URL:          r.Link,
			Source:       r.Source,
			Snippet:      r.Snippet,
			PublishedRaw: r.Date,
			AgeDays:      age,
			Thumbnail:    r.Thumbnail,
		})
	}
	return Result[discovery.ArticleEntry]{Entries: limit(entries, maxResults)}
}

// ParseAgeDays converts a relative ("3 weeks ago", "yesterday") or absolute
// date string into an age in whole days relative to now. Months count as 30
// days and years as 365. Unparseable input returns UnknownAge.
func ParseAgeDays(raw string, now time.Time) int {
	s := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	switch s {
	case "":
		return UnknownAge
	case "today", "just now", "now":
		return 0
	case "yesterday":
		return 1
	}
	if m := relativeDate.FindStringSubmatch(s); m != nil {
		n := 1
		if c := m[1][0]; c >= '0' && c <= '9' {
			v, err := strconv.Atoi(m[1])
			if err != nil {
				return UnknownAge
			}
			n = v
		}
		per := unitDays[m[2]]
		if per > 0 && n > UnknownAge/per {
			return UnknownAge
		}
		return n * per
	}
	trimmed := strings.TrimSpace(raw)
	for _, layout := range absoluteLayouts {
		t, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		days := int(now.Sub(t).Hours() / 24)
		return max(days, 0)
	}
	return UnknownAge
}
