package discovery

import (
	"context"
	"io"
	"time"
)

// Cache is the shared key-value store behind budget counters and query cooldowns.
// Incr must be atomic in the underlying store.
type Cache interface {
	// Incr adds delta to key and returns the new value. The TTL is applied when the key is created.
	Incr(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	// Get returns the counter stored at key, or zero when the key is absent.
	Get(ctx context.Context, key string) (int64, error)
	// SetMarker stores a presence marker that expires after ttl.
	SetMarker(ctx context.Context, key string, ttl time.Duration) error
	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
}

// ProductStore persists canonical products.
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductByFingerprint(ctx context.Context, fingerprint string) (*Product, error)
	CreateProduct(ctx context.Context, product *Product) error
	UpdateProduct(ctx context.Context, product *Product) error
	ListProductsByStatus(ctx context.Context, status ProductStatus, limit int) ([]*Product, error)
}

// CrawledURLStore persists observed URLs keyed by URL hash.
type CrawledURLStore interface {
	GetCrawledURL(ctx context.Context, urlHash string) (*CrawledURL, error)
	CreateCrawledURL(ctx context.Context, rec *CrawledURL) error
	UpdateCrawledURL(ctx context.Context, rec *CrawledURL) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes enrichment events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes hex digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces product IDs.
type IDGenerator interface {
	NewID() (string, error)
}
