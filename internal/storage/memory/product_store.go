package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

// ProductStore provides an in-memory product and crawled URL store for development/testing.
// Records are copied on the way in and out so callers never share state with the store.
type ProductStore struct {
	mu            sync.RWMutex
	products      map[string]*discovery.Product
	byFingerprint map[string]string
	urls          map[string]discovery.CrawledURL
}

// NewProductStore constructs a ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{
		products:      make(map[string]*discovery.Product),
		byFingerprint: make(map[string]string),
		urls:          make(map[string]discovery.CrawledURL),
	}
}

// GetProduct fetches a product by ID.
func (s *ProductStore) GetProduct(_ context.Context, id string) (*discovery.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, discovery.ErrNotFound)
	}
	return p.Clone(), nil
}

// GetProductByFingerprint fetches a product by fingerprint.
func (s *ProductStore) GetProductByFingerprint(_ context.Context, fingerprint string) (*discovery.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil, fmt.Errorf("fingerprint %s: %w", fingerprint, discovery.ErrNotFound)
	}
	return s.products[id].Clone(), nil
}

// CreateProduct stores a new product. IDs and fingerprints must be unique.
func (s *ProductStore) CreateProduct(_ context.Context, product *discovery.Product) error {
	if product == nil || product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[product.ID]; exists {
		return fmt.Errorf("product %s already exists", product.ID)
	}
	if product.Fingerprint != "" {
		if _, exists := s.byFingerprint[product.Fingerprint]; exists {
			return fmt.Errorf("fingerprint %s already exists", product.Fingerprint)
		}
		s.byFingerprint[product.Fingerprint] = product.ID
	}
	s.products[product.ID] = product.Clone()
	return nil
}

// UpdateProduct replaces a stored product.
func (s *ProductStore) UpdateProduct(_ context.Context, product *discovery.Product) error {
	if product == nil || product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.products[product.ID]
	if !ok {
		return fmt.Errorf("product %s: %w", product.ID, discovery.ErrNotFound)
	}
	if prev.Fingerprint != product.Fingerprint {
		if owner, taken := s.byFingerprint[product.Fingerprint]; taken && owner != product.ID {
			return fmt.Errorf("fingerprint %s already exists", product.Fingerprint)
		}
		delete(s.byFingerprint, prev.Fingerprint)
		if product.Fingerprint != "" {
			s.byFingerprint[product.Fingerprint] = product.ID
		}
	}
	s.products[product.ID] = product.Clone()
	return nil
}

// ListProductsByStatus returns up to limit products with the given status, oldest first.
// A limit of zero or less returns every match.
func (s *ProductStore) ListProductsByStatus(
	_ context.Context,
	status discovery.ProductStatus,
	limit int,
) ([]*discovery.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*discovery.Product, 0)
	for _, p := range s.products {
		if p.Status == status {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetCrawledURL fetches a crawled URL by hash.
func (s *ProductStore) GetCrawledURL(_ context.Context, urlHash string) (*discovery.CrawledURL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.urls[urlHash]
	if !ok {
		return nil, fmt.Errorf("crawled url %s: %w", urlHash, discovery.ErrNotFound)
	}
	return &rec, nil
}

// CreateCrawledURL stores a new crawled URL.
func (s *ProductStore) CreateCrawledURL(_ context.Context, rec *discovery.CrawledURL) error {
	if rec == nil || rec.URLHash == "" {
		return fmt.Errorf("url hash is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.urls[rec.URLHash]; exists {
		return fmt.Errorf("crawled url %s already exists", rec.URLHash)
	}
	s.urls[rec.URLHash] = *rec
	return nil
}

// UpdateCrawledURL replaces a stored crawled URL.
func (s *ProductStore) UpdateCrawledURL(_ context.Context, rec *discovery.CrawledURL) error {
	if rec == nil || rec.URLHash == "" {
		return fmt.Errorf("url hash is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[rec.URLHash]; !ok {
		return fmt.Errorf("crawled url %s: %w", rec.URLHash, discovery.ErrNotFound)
	}
	s.urls[rec.URLHash] = *rec
	return nil
}
