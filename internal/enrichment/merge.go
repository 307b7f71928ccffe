package enrichment

import (
	"strings"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/finder"
)

// mergePrices appends unseen prices and lowers the best price when a cheaper
// positive one arrives. Ties keep the current best.
func mergePrices(p *discovery.Product, entries []discovery.PriceEntry) int {
	type key struct {
		url      string
		price    float64
		currency string
	}
	seen := make(map[key]struct{}, len(p.Prices))
	for _, e := range p.Prices {
		seen[key{e.URL, e.Price, e.Currency}] = struct{}{}
	}
	added := 0
	for _, e := range entries {
		k := key{e.URL, e.Price, e.Currency}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		p.Prices = append(p.Prices, e)
		added++
	}
	if best, ok := finder.BestPrice(entries); ok {
		if p.BestPrice == nil || p.BestPrice.Price <= 0 || best.Price < p.BestPrice.Price {
			p.BestPrice = &discovery.BestPrice{
				Price:    best.Price,
				Currency: best.Currency,
				Retailer: best.Retailer,
				URL:      best.URL,
			}
		}
	}
	return added
}

// mergeRatings keeps the first rating per source and records each new
// review source as a contribution.
func mergeRatings(p *discovery.Product, entries []discovery.RatingEntry) int {
	seen := make(map[string]struct{}, len(p.Ratings))
	for _, r := range p.Ratings {
		seen[strings.ToLower(r.Source)] = struct{}{}
	}
	added := 0
	for _, r := range entries {
		src := strings.ToLower(r.Source)
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		p.Ratings = append(p.Ratings, r)
		if r.URL != "" {
			p.RecordContribution(discovery.SourceContribution{
				SourceURL:  r.URL,
				Fields:     []string{"ratings"},
				Confidence: r.Confidence,
				RecordedAt: r.FoundAt,
			})
		}
		added++
	}
	return added
}

func mergeImages(p *discovery.Product, entries []discovery.ImageEntry) int {
	seen := make(map[string]struct{}, len(p.Images))
	for _, img := range p.Images {
		seen[img.URL] = struct{}{}
	}
	added := 0
	for _, img := range entries {
		if _, dup := seen[img.URL]; dup || img.URL == "" {
			continue
		}
		seen[img.URL] = struct{}{}
		p.Images = append(p.Images, img)
		added++
	}
	return added
}

func mergeArticles(p *discovery.Product, entries []discovery.ArticleEntry) int {
	seen := make(map[string]struct{}, len(p.PressMentions))
	for _, a := range p.PressMentions {
		seen[a.URL] = struct{}{}
	}
	added := 0
	for _, a := range entries {
		if _, dup := seen[a.URL]; dup || a.URL == "" {
			continue
		}
		seen[a.URL] = struct{}{}
		p.PressMentions = append(p.PressMentions, a)
		added++
	}
	return added
}
