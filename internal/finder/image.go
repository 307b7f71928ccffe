package finder

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
)

// Default minimum image dimensions in pixels.
const (
	DefaultMinImageWidth  = 200
	DefaultMinImageHeight = 200
)

// imageKeywords is checked in order; the first type with a matching keyword wins.
var imageKeywords = []struct {
	kind     discovery.ImageType
	keywords []string
}{
	{discovery.ImageBottle, []string{"bottle"}},
	{discovery.ImageLabel, []string{"label"}},
	{discovery.ImagePackaging, []string{"packaging", "gift box", "gift tin", "box", "tube", "carton"}},
	{discovery.ImageServing, []string{"glass", "serve", "serving", "cocktail", "pour", "neat", "on the rocks"}},
}

// ImageFinder collects product images from the images engine.
type ImageFinder struct {
	search    searchapi.Searcher
	minWidth  int
	minHeight int
	logger    *zap.Logger
}

// NewImageFinder builds an ImageFinder. Non-positive dimensions use the defaults.
func NewImageFinder(s searchapi.Searcher, minWidth, minHeight int, logger *zap.Logger) *ImageFinder {
	if minWidth <= 0 {
		minWidth = DefaultMinImageWidth
	}
	if minHeight <= 0 {
		minHeight = DefaultMinImageHeight
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageFinder{search: s, minWidth: minWidth, minHeight: minHeight, logger: logger}
}

// Find searches "{brand} {name} bottle". Images whose reported size is below
// the minimum are dropped; images without size metadata are kept.
func (f *ImageFinder) Find(ctx context.Context, p *discovery.Product, maxResults int) Result[discovery.ImageEntry] {
	var q string
	if p != nil {
		q = query(brandedName(p), "bottle")
	}
	resp, err := search(ctx, f.search, f.logger, NameImage, p, searchapi.Request{
		Query: q, Engine: searchapi.EngineImages, Num: max(maxResults*2, 10),
	})
	if err != nil {
		return Result[discovery.ImageEntry]{Err: err}
	}

	entries := make([]discovery.ImageEntry, 0, len(resp.Images))
	for _, r := range resp.Images {
		link := r.Original
		if link == "" {
			link = r.Thumbnail
		}
		if link == "" {
			continue
		}
		if r.OriginalWidth > 0 && r.OriginalWidth < f.minWidth {
			continue
		}
		if r.OriginalHeight > 0 && r.OriginalHeight < f.minHeight {
			continue
		}
		entries = append(entries, discovery.ImageEntry{
			URL:          link,
			ThumbnailURL: r.Thumbnail,
			Width:        r.OriginalWidth,
			Height:       r.OriginalHeight,
			Type:         ClassifyImage(r.Title),
			Title:        r.Title,
			Source:       r.Source,
		})
	}
	return Result[discovery.ImageEntry]{Entries: limit(entries, maxResults)}
}

// ClassifyImage guesses the image subject from its title.
func ClassifyImage(title string) discovery.ImageType {
	t := strings.ToLower(title)
	for _, k := range imageKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(t, kw) {
				return k.kind
			}
		}
	}
	return discovery.ImageProduct
}
