package searchapi

import (
	"context"
	"errors"
)

var (
	// ErrBudgetExhausted is returned by Budgeted when the API quota refuses a call.
	ErrBudgetExhausted = errors.New("search budget exhausted")
	// ErrUpstream wraps non-2xx responses and unreadable bodies from the search API.
	ErrUpstream = errors.New("search api failure")
)

// ProviderError is returned when a search failed after at least one request
// reached the provider. Those requests count against the quota.
type ProviderError struct {
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string { return e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// Engine selects the kind of search.
type Engine string

// Supported engines.
const (
	EngineOrganic  Engine = "organic"
	EngineShopping Engine = "shopping"
	EngineImages   Engine = "images"
	EngineNews     Engine = "news"
)

// upstream maps engines to the provider's engine parameter.
var upstream = map[Engine]string{
	EngineOrganic:  "google",
	EngineShopping: "google_shopping",
	EngineImages:   "google_images",
	EngineNews:     "google_news",
}

// Request is one search.
type Request struct {
	Query  string
	Engine Engine
	Num    int
}

// Searcher issues searches.
type Searcher interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

// Response holds the result list for the requested engine. Only the slice
// matching the engine is normally populated.
type Response struct {
	Organic  []OrganicResult  `json:"organic_results"`
	Shopping []ShoppingResult `json:"shopping_results"`
	Images   []ImageResult    `json:"images_results"`
	News     []NewsResult     `json:"news_results"`

	// Skipped holds one error per result entry that could not be decoded.
	Skipped []error `json:"-"`
	// Attempts is the number of provider requests the search took.
	Attempts int `json:"-"`
}

// OrganicResult is a web search hit.
type OrganicResult struct {
	Position      int
	Title         string
	Link          string
	Snippet       string
	DisplayedLink string
}

// ShoppingResult is a product listing.
type ShoppingResult struct {
	Position       int
	Title          string
	Price          string
	ExtractedPrice float64
	Source         string
	Link           string
	Thumbnail      string
}

// ImageResult is an image hit.
type ImageResult struct {
	Position       int
	Title          string
	Original       string
	Thumbnail      string
	Source         string
	Link           string
	OriginalWidth  int
	OriginalHeight int
}

// NewsResult is a press hit.
type NewsResult struct {
	Position  int
	Title     string
	Link      string
	Source    string
	Date      string
	Snippet   string
	Thumbnail string
}
