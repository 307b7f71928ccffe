package finder

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
)

// RelevanceThreshold is the share of significant product-name words a listing
// title must contain.
const RelevanceThreshold = 0.5

// DefaultCurrency is assumed when a price string names none.
const DefaultCurrency = "USD"

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"£", "GBP"},
	{"€", "EUR"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"$", "USD"},
}

var (
	currencyCode = regexp.MustCompile(`(?i)\b(USD|GBP|EUR|JPY|INR|CAD|AUD|CHF)\b`)
	priceNumber  = regexp.MustCompile(`\d[\d.,]*`)
	wordSplit    = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "for": {}, "year": {}, "old": {}, "years": {},
	"edition": {}, "bottle": {}, "from": {}, "des": {}, "del": {}, "les": {},
}

// PriceFinder looks up retail prices on the shopping engine.
type PriceFinder struct {
	search searchapi.Searcher
	clock  discovery.Clock
	logger *zap.Logger
}

// NewPriceFinder builds a PriceFinder.
func NewPriceFinder(s searchapi.Searcher, clock discovery.Clock, logger *zap.Logger) *PriceFinder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceFinder{search: s, clock: clock, logger: logger}
}

// Find searches "{brand} {name}" and returns relevant listings with parseable prices.
func (f *PriceFinder) Find(ctx context.Context, p *discovery.Product, maxResults int) Result[discovery.PriceEntry] {
	var q string
	if p != nil {
		q = brandedName(p)
	}
	resp, err := search(ctx, f.search, f.logger, NamePrice, p, searchapi.Request{
		Query: q, Engine: searchapi.EngineShopping, Num: max(maxResults*2, 10),
	})
	if err != nil {
		return Result[discovery.PriceEntry]{Err: err}
	}

	now := f.clock.Now()
	entries := make([]discovery.PriceEntry, 0, len(resp.Shopping))
	for _, r := range resp.Shopping {
		if !IsRelevant(p.Name, r.Title) {
			continue
		}
		price, currency, ok := ParsePrice(r.Price)
		if strings.TrimSpace(r.Price) == "" && r.ExtractedPrice > 0 {
			// Structured price only when the listing carries no price text.
			price, currency, ok = r.ExtractedPrice, DefaultCurrency, true
		}
		if !ok {
			continue
		}
		entries = append(entries, discovery.PriceEntry{
			Price:    price,
			Currency: currency,
			Retailer: r.Source,
			URL:      r.Link,
			Title:    r.Title,
			RawPrice: r.Price,
			FoundAt:  now,
		})
	}
	return Result[discovery.PriceEntry]{Entries: limit(entries, maxResults)}
}

// BestPrice returns the entry with the lowest positive price. Ties keep the
// earliest entry. It reports false when no entry has a positive price.
func BestPrice(entries []discovery.PriceEntry) (discovery.PriceEntry, bool) {
	best := -1
	for i, e := range entries {
		if e.Price <= 0 {
			continue
		}
		if best < 0 || e.Price < entries[best].Price {
			best = i
		}
	}
	if best < 0 {
		return discovery.PriceEntry{}, false
	}
	return entries[best], true
}

// ParsePrice extracts an amount and currency code from a localized price
// string such as "$45.99", "45.99 USD", "£1,299.00" or "1.299,00 €".
func ParsePrice(raw string) (float64, string, bool) {
	raw = strings.TrimSpace(raw)
	num := priceNumber.FindString(raw)
	if num == "" {
		return 0, "", false
	}
	value, ok := parseAmount(num)
	if !ok {
		return 0, "", false
	}
	return value, detectCurrency(raw), true
}

func detectCurrency(raw string) string {
	for _, s := range currencySymbols {
		if strings.Contains(raw, s.symbol) {
			return s.code
		}
	}
	if m := currencyCode.FindStringSubmatch(raw); m != nil {
		return strings.ToUpper(m[1])
	}
	return DefaultCurrency
}

// parseAmount resolves thousands and decimal separators. When both appear the
// last one is the decimal separator. A lone comma followed by one or two
// digits is a decimal comma; otherwise commas group thousands. Several dots
// group thousands.
func parseAmount(num string) (float64, bool) {
	num = strings.TrimRight(num, ".,")
	lastComma := strings.LastIndex(num, ",")
	lastDot := strings.LastIndex(num, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(num, ",") == 1 && len(num)-lastComma-1 <= 2 {
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	case strings.Count(num, ".") > 1:
		num = strings.ReplaceAll(num, ".", "")
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// significantWords lowercases text and drops stop words and words of two characters or fewer.
func significantWords(text string) []string {
	var out []string
	for _, w := range wordSplit.Split(strings.ToLower(text), -1) {
		if len([]rune(w)) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// IsRelevant reports whether title shares at least half of the significant
// words of productName. Names without significant words match anything.
func IsRelevant(productName, title string) bool {
	words := significantWords(productName)
	if len(words) == 0 {
		return true
	}
	inTitle := make(map[string]struct{})
	for _, w := range wordSplit.Split(strings.ToLower(title), -1) {
		inTitle[w] = struct{}{}
	}
	matched := 0
	for _, w := range words {
		if _, ok := inTitle[w]; ok {
			matched++
		}
	}
	return float64(matched)/float64(len(words)) >= RelevanceThreshold
}
