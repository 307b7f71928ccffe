package discovery

import (
	"slices"
	"strings"
)

// RecordContribution attaches a source to the product, keeping at most one
// contribution per source URL. A repeated source replaces the earlier record.
// Confidence is clamped to [0, 1]. It reports whether the source was new.
func (p *Product) RecordContribution(c SourceContribution) bool {
	c.Confidence = min(max(c.Confidence, 0), 1)
	c.Fields = slices.Clone(c.Fields)

	added := true
	idx := slices.IndexFunc(p.Sources, func(s SourceContribution) bool {
		return s.SourceURL == c.SourceURL
	})
	if idx >= 0 {
		p.Sources[idx] = c
		added = false
	} else {
		p.Sources = append(p.Sources, c)
	}
	p.recountSources()
	return added
}

// recountSources derives SourceCount and VerifiedFields from Sources.
// A field is verified once two or more sources contributed it.
func (p *Product) recountSources() {
	p.SourceCount = len(p.Sources)
	counts := make(map[string]int)
	for _, s := range p.Sources {
		seen := make(map[string]struct{}, len(s.Fields))
		for _, f := range s.Fields {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			counts[f]++
		}
	}
	verified := make([]string, 0, len(counts))
	for f, n := range counts {
		if n >= 2 {
			verified = append(verified, f)
		}
	}
	slices.Sort(verified)
	p.VerifiedFields = verified
}

// HasIdentity reports whether the product carries enough identity to be searched for.
func (p *Product) HasIdentity() bool {
	return strings.TrimSpace(p.Name) != ""
}

// Clone returns a deep copy safe to hand to another goroutine.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	cp.PrimaryAromas = slices.Clone(p.PrimaryAromas)
	cp.PalateFlavors = slices.Clone(p.PalateFlavors)
	cp.FinishFlavors = slices.Clone(p.FinishFlavors)
	cp.Prices = slices.Clone(p.Prices)
	cp.Ratings = slices.Clone(p.Ratings)
	cp.Awards = slices.Clone(p.Awards)
	cp.Images = slices.Clone(p.Images)
	cp.PressMentions = slices.Clone(p.PressMentions)
	cp.Conflicts = slices.Clone(p.Conflicts)
	cp.VerifiedFields = slices.Clone(p.VerifiedFields)
	if p.BestPrice != nil {
		bp := *p.BestPrice
		cp.BestPrice = &bp
	}
	if p.LastEnrichedAt != nil {
		t := *p.LastEnrichedAt
		cp.LastEnrichedAt = &t
	}
	cp.Sources = make([]SourceContribution, len(p.Sources))
	for i, s := range p.Sources {
		s.Fields = slices.Clone(s.Fields)
		cp.Sources[i] = s
	}
	if p.Sources == nil {
		cp.Sources = nil
	}
	return &cp
}
