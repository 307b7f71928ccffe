// Package scoring computes the 0-100 completeness score of a product and the
// status that follows from it. Score is a pure function of the product's fields.
package scoring

import (
	"strings"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

// Category caps. They sum to 100.
const (
	CapIdentification = 15
	CapBasicInfo      = 15
	CapPalate         = 20
	CapNose           = 10
	CapFinish         = 10
	CapEnrichment     = 20
	CapVerification   = 10
)

// Point values.
const (
	PointsName          = 10
	PointsBrand         = 5
	PointsType          = 5
	PointsABV           = 5
	PointsDescription   = 5
	PointsPalateFlavors = 10
	PointsPalateText    = 5
	PointsMidPalate     = 3
	PointsMouthfeel     = 2
	PointsNoseText      = 5
	PointsAromas        = 5
	PointsFinishText    = 5
	PointsFinishFlavors = 3
	PointsFinishLength  = 2
	PointsBestPrice     = 5
	PointsImage         = 5
	PointsRating        = 5
	PointsAward         = 5
	PointsTwoSources    = 5
	PointsThreeSources  = 10
	MinTags             = 2
	MaxScore            = 100
)

// Breakdown holds capped points per category.
type Breakdown struct {
	Identification int `json:"identification"`
	BasicInfo      int `json:"basic_info"`
	Palate         int `json:"palate"`
	Nose           int `json:"nose"`
	Finish         int `json:"finish"`
	Enrichment     int `json:"enrichment"`
	Verification   int `json:"verification"`
}

// Total sums the categories, never exceeding MaxScore.
func (b Breakdown) Total() int {
	sum := b.Identification + b.BasicInfo + b.Palate + b.Nose + b.Finish + b.Enrichment + b.Verification
	return min(sum, MaxScore)
}

// Score returns the completeness score of p.
func Score(p *discovery.Product) int {
	return Compute(p).Total()
}

// Compute returns the per-category breakdown for p.
func Compute(p *discovery.Product) Breakdown {
	if p == nil {
		return Breakdown{}
	}
	var b Breakdown

	b.Identification = capped(CapIdentification,
		when(has(p.Name), PointsName),
		when(has(p.Brand), PointsBrand),
	)
	b.BasicInfo = capped(CapBasicInfo,
		when(has(p.ProductType), PointsType),
		when(p.ABV > 0, PointsABV),
		when(has(p.Description), PointsDescription),
	)
	b.Palate = capped(CapPalate,
		when(len(p.PalateFlavors) >= MinTags, PointsPalateFlavors),
		when(has(p.PalateDescription) || has(p.InitialTaste), PointsPalateText),
		when(has(p.MidPalate), PointsMidPalate),
		when(has(p.Mouthfeel), PointsMouthfeel),
	)
	b.Nose = capped(CapNose,
		when(has(p.NoseDescription), PointsNoseText),
		when(len(p.PrimaryAromas) >= MinTags, PointsAromas),
	)
	b.Finish = capped(CapFinish,
		when(has(p.FinishDescription) || has(p.FinalNotes), PointsFinishText),
		when(len(p.FinishFlavors) >= MinTags, PointsFinishFlavors),
		when(p.FinishLength > 0, PointsFinishLength),
	)
	b.Enrichment = capped(CapEnrichment,
		when(p.BestPrice != nil && p.BestPrice.Price > 0, PointsBestPrice),
		when(len(p.Images) > 0, PointsImage),
		when(len(p.Ratings) > 0, PointsRating),
		when(len(p.Awards) > 0, PointsAward),
	)
	switch {
	case p.SourceCount >= 3:
		b.Verification = min(PointsThreeSources, CapVerification)
	case p.SourceCount >= 2:
		b.Verification = min(PointsTwoSources, CapVerification)
	}
	return b
}

// Status thresholds.
type Thresholds struct {
	Complete int
	Enriched int
}

// DefaultThresholds marks products complete at 80 and enriched at 40.
func DefaultThresholds() Thresholds {
	return Thresholds{Complete: 80, Enriched: 40}
}

// StatusFor maps a score to a product status.
func (t Thresholds) StatusFor(score int) discovery.ProductStatus {
	switch {
	case score >= t.Complete:
		return discovery.StatusComplete
	case score >= t.Enriched:
		return discovery.StatusEnriched
	default:
		return discovery.StatusPartial
	}
}

func has(s string) bool { return strings.TrimSpace(s) != "" }

func when(cond bool, points int) int {
	if cond {
		return points
	}
	return 0
}

func capped(limit int, points ...int) int {
	sum := 0
	for _, p := range points {
		sum += p
	}
	return min(sum, limit)
}
