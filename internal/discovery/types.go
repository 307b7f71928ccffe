package discovery

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCacheUnavailable signals that the shared cache could not be reached.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrUnknownCategory is returned when no query templates exist for a category.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInvalidProduct is returned when a product is missing identification fields.
	ErrInvalidProduct = errors.New("invalid product")
)

// ProductStatus describes how far along enrichment a product is.
type ProductStatus string

const (
	// StatusPending marks a freshly created skeleton product.
	StatusPending ProductStatus = "pending"
	// StatusPartial marks a product that was enriched but is still sparse.
	StatusPartial ProductStatus = "partial"
	// StatusEnriched marks a product with a reasonable amount of data.
	StatusEnriched ProductStatus = "enriched"
	// StatusComplete marks a product whose completeness score passed the completion threshold.
	StatusComplete ProductStatus = "complete"
	// StatusFailed marks a product whose last enrichment attempt failed.
	StatusFailed ProductStatus = "failed"
)

// ImageType classifies the subject of a product image.
type ImageType string

// Image subjects in classification priority order.
const (
	ImageBottle    ImageType = "bottle"
	ImageLabel     ImageType = "label"
	ImagePackaging ImageType = "packaging"
	ImageServing   ImageType = "serving"
	ImageProduct   ImageType = "product"
)

// PriceEntry is one observed retail price.
type PriceEntry struct {
	Price    float64   `json:"price"`
	Currency string    `json:"currency"`
	Retailer string    `json:"retailer"`
	URL      string    `json:"url"`
	Title    string    `json:"title,omitempty"`
	RawPrice string    `json:"raw_price,omitempty"`
	FoundAt  time.Time `json:"found_at"`
}

// BestPrice is the lowest positive price seen for a product.
type BestPrice struct {
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	Retailer string  `json:"retailer"`
	URL      string  `json:"url"`
}

// RatingEntry is a review score from one source.
type RatingEntry struct {
	Source     string    `json:"source"`
	Score      float64   `json:"score"`
	MaxScore   float64   `json:"max_score"`
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Snippet    string    `json:"snippet,omitempty"`
	Confidence float64   `json:"confidence"`
	FoundAt    time.Time `json:"found_at"`
}

// Award is a competition result.
type Award struct {
	Competition string `json:"competition"`
	Year        int    `json:"year,omitempty"`
	Medal       string `json:"medal,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ImageEntry is a candidate product image.
type ImageEntry struct {
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Type         ImageType `json:"type"`
	Title        string    `json:"title,omitempty"`
	Source       string    `json:"source,omitempty"`
}

// ArticleEntry is a press mention.
type ArticleEntry struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	Source       string `json:"source,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
	PublishedRaw string `json:"published_raw,omitempty"`
	AgeDays      int    `json:"age_days"`
	Thumbnail    string `json:"thumbnail,omitempty"`
}

// SourceContribution records that a source document contributed fields to a product.
type SourceContribution struct {
	SourceURL  string    `json:"source_url"`
	Fields     []string  `json:"fields,omitempty"`
	Confidence float64   `json:"confidence"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Conflict is a disagreement between a stored value and a newly observed one.
type Conflict struct {
	Field        string `json:"field"`
	CurrentValue any    `json:"current_value"`
	NewValue     any    `json:"new_value"`
	Source       string `json:"source"`
}

// Observation is a set of field values extracted from a single source document.
// Values use the field names listed in fields.go.
type Observation struct {
	SourceURL  string         `json:"source_url"`
	Fields     map[string]any `json:"fields"`
	Awards     []Award        `json:"awards,omitempty"`
	Confidence float64        `json:"confidence"`
	ObservedAt time.Time      `json:"observed_at"`
}

// Product is the canonical merged record.
type Product struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`

	Name        string `json:"name"`
	Brand       string `json:"brand,omitempty"`
	ProductType string `json:"product_type,omitempty"`

	ABV          float64 `json:"abv,omitempty"`
	AgeStatement int     `json:"age_statement,omitempty"`
	VolumeML     int     `json:"volume_ml,omitempty"`
	Region       string  `json:"region,omitempty"`
	Country      string  `json:"country,omitempty"`
	Description  string  `json:"description,omitempty"`

	NoseDescription string   `json:"nose_description,omitempty"`
	PrimaryAromas   []string `json:"primary_aromas,omitempty"`

	PalateDescription string   `json:"palate_description,omitempty"`
	InitialTaste      string   `json:"initial_taste,omitempty"`
	MidPalate         string   `json:"mid_palate_evolution,omitempty"`
	Mouthfeel         string   `json:"mouthfeel,omitempty"`
	PalateFlavors     []string `json:"palate_flavors,omitempty"`

	FinishDescription string   `json:"finish_description,omitempty"`
	FinalNotes        string   `json:"final_notes,omitempty"`
	FinishFlavors     []string `json:"finish_flavors,omitempty"`
	FinishLength      int      `json:"finish_length,omitempty"`

	Prices        []PriceEntry   `json:"prices,omitempty"`
	BestPrice     *BestPrice     `json:"best_price,omitempty"`
	Ratings       []RatingEntry  `json:"ratings,omitempty"`
	Awards        []Award        `json:"awards,omitempty"`
	Images        []ImageEntry   `json:"images,omitempty"`
	PressMentions []ArticleEntry `json:"press_mentions,omitempty"`

	Sources           []SourceContribution `json:"sources,omitempty"`
	Conflicts         []Conflict           `json:"conflicts,omitempty"`
	SourceCount       int                  `json:"source_count"`
	VerifiedFields    []string             `json:"verified_fields,omitempty"`
	CompletenessScore int                  `json:"completeness_score"`
	Status            ProductStatus        `json:"status"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastEnrichedAt *time.Time `json:"last_enriched_at,omitempty"`
}

// CrawledURL tracks a page the pipeline has observed.
type CrawledURL struct {
	URL              string    `json:"url"`
	URLHash          string    `json:"url_hash"`
	ContentHash      string    `json:"content_hash,omitempty"`
	FirstSeenAt      time.Time `json:"first_seen_at"`
	LastCrawledAt    time.Time `json:"last_crawled_at"`
	IsProductPage    bool      `json:"is_product_page"`
	ProcessingStatus string    `json:"processing_status"`
	ContentChanged   bool      `json:"content_changed"`
	ProductID        string    `json:"product_id,omitempty"`
}

// Crawled URL processing states.
const (
	URLPending   = "pending"
	URLProcessed = "processed"
	URLSkipped   = "skipped"
)

// DiscoveryTarget is a ranked candidate page produced from search results.
type DiscoveryTarget struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Snippet       string `json:"snippet"`
	Domain        string `json:"domain"`
	PriorityScore int    `json:"priority_score"`
	Position      int    `json:"position"`
	Query         string `json:"query,omitempty"`
}
