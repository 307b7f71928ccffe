package dedup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/conflict"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/metrics"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/scoring"
)

// Registrar records observed URLs and resolves observations to canonical products.
type Registrar struct {
	urls       discovery.CrawledURLStore
	products   discovery.ProductStore
	normalizer *Normalizer
	detector   *conflict.Detector
	clock      discovery.Clock
	ids        discovery.IDGenerator
	logger     *zap.Logger
}

// RegistrarDeps groups the Registrar's collaborators.
type RegistrarDeps struct {
	URLs       discovery.CrawledURLStore
	Products   discovery.ProductStore
	Normalizer *Normalizer
	Detector   *conflict.Detector
	Clock      discovery.Clock
	IDs        discovery.IDGenerator
	Logger     *zap.Logger
}

// NewRegistrar builds a Registrar.
func NewRegistrar(deps RegistrarDeps) (*Registrar, error) {
	if deps.URLs == nil || deps.Products == nil {
		return nil, fmt.Errorf("url and product stores are required")
	}
	if deps.Clock == nil || deps.IDs == nil {
		return nil, fmt.Errorf("clock and id generator are required")
	}
	if deps.Normalizer == nil {
		deps.Normalizer = NewNormalizer(nil)
	}
	if deps.Detector == nil {
		deps.Detector = conflict.NewDetector(nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registrar{
		urls:       deps.URLs,
		products:   deps.Products,
		normalizer: deps.Normalizer,
		detector:   deps.Detector,
		clock:      deps.Clock,
		ids:        deps.IDs,
		logger:     deps.Logger,
	}, nil
}

// URLResult describes the outcome of ObserveURL.
type URLResult struct {
	Record  *discovery.CrawledURL
	Created bool
}

// ObserveURL creates the CrawledURL for rawURL or updates the existing one.
// contentHash may be empty when the page has not been fetched; a non-empty
// hash that differs from the stored one sets ContentChanged.
func (r *Registrar) ObserveURL(ctx context.Context, rawURL, contentHash string, isProductPage bool) (URLResult, error) {
	hash, err := r.normalizer.Hash(rawURL)
	if err != nil {
		return URLResult{}, err
	}
	now := r.clock.Now()

	rec, err := r.urls.GetCrawledURL(ctx, hash)
	if errors.Is(err, discovery.ErrNotFound) {
		rec = &discovery.CrawledURL{
			URL:              rawURL,
			URLHash:          hash,
			ContentHash:      contentHash,
			FirstSeenAt:      now,
			LastCrawledAt:    now,
			IsProductPage:    isProductPage,
			ProcessingStatus: discovery.URLPending,
		}
		if err := r.urls.CreateCrawledURL(ctx, rec); err != nil {
			return URLResult{}, fmt.Errorf("create crawled url: %w", err)
		}
		return URLResult{Record: rec, Created: true}, nil
	}
	if err != nil {
		return URLResult{}, fmt.Errorf("lookup crawled url: %w", err)
	}

	rec.ContentChanged = contentHash != "" && rec.ContentHash != "" && contentHash != rec.ContentHash
	if contentHash != "" {
		rec.ContentHash = contentHash
	}
	rec.LastCrawledAt = now
	rec.IsProductPage = rec.IsProductPage || isProductPage
	if err := r.urls.UpdateCrawledURL(ctx, rec); err != nil {
		return URLResult{}, fmt.Errorf("update crawled url: %w", err)
	}
	return URLResult{Record: rec}, nil
}

// ResolveResult describes the outcome of ResolveProduct.
type ResolveResult struct {
	Product   *discovery.Product
	Created   bool
	Conflicts []discovery.Conflict
}

// ResolveProduct looks up the observation's fingerprint. A match gets the
// observation attached as a source contribution (empty fields filled, lists
// unioned, conflicts recorded); otherwise a skeleton product is created.
func (r *Registrar) ResolveProduct(ctx context.Context, obs discovery.Observation) (ResolveResult, error) {
	candidate, applied := r.candidate(obs)
	if !candidate.HasIdentity() {
		return ResolveResult{}, fmt.Errorf("resolve product: %w: observation has no name", discovery.ErrInvalidProduct)
	}
	fp := Fingerprint(candidate)
	now := r.clock.Now()
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = now
	}
	contribution := discovery.SourceContribution{
		SourceURL:  obs.SourceURL,
		Fields:     applied,
		Confidence: obs.Confidence,
		RecordedAt: obs.ObservedAt,
	}

	existing, err := r.products.GetProductByFingerprint(ctx, fp)
	if errors.Is(err, discovery.ErrNotFound) {
		id, err := r.ids.NewID()
		if err != nil {
			return ResolveResult{}, fmt.Errorf("generate product id: %w", err)
		}
		candidate.ID = id
		candidate.Fingerprint = fp
		candidate.Status = discovery.StatusPending
		candidate.Awards = mergeAwards(nil, obs.Awards)
		candidate.CreatedAt = now
		candidate.UpdatedAt = now
		if obs.SourceURL != "" {
			candidate.RecordContribution(contribution)
		}
		candidate.CompletenessScore = scoring.Score(candidate)
		if err := r.products.CreateProduct(ctx, candidate); err != nil {
			return ResolveResult{}, fmt.Errorf("create product: %w", err)
		}
		metrics.ObserveResolve("created")
		r.logger.Info("created skeleton product",
			zap.String("product_id", id), zap.String("fingerprint", fp), zap.String("source", obs.SourceURL))
		return ResolveResult{Product: candidate, Created: true}, nil
	}
	if err != nil {
		return ResolveResult{}, fmt.Errorf("lookup product by fingerprint: %w", err)
	}

	conflicts := r.detector.DetectConflicts(existing, obs)
	r.merge(existing, obs)
	existing.Conflicts = append(existing.Conflicts, conflicts...)
	if obs.SourceURL != "" {
		existing.RecordContribution(contribution)
	}
	existing.CompletenessScore = scoring.Score(existing)
	existing.UpdatedAt = now
	if err := r.products.UpdateProduct(ctx, existing); err != nil {
		return ResolveResult{}, fmt.Errorf("update product: %w", err)
	}
	metrics.ObserveResolve("attached")
	if len(conflicts) > 0 {
		r.logger.Info("source disagrees with product",
			zap.String("product_id", existing.ID),
			zap.String("source", obs.SourceURL),
			zap.Int("conflicts", len(conflicts)),
		)
	}
	return ResolveResult{Product: existing, Conflicts: conflicts}, nil
}

// candidate builds a product from the observation and returns the fields it set.
func (r *Registrar) candidate(obs discovery.Observation) (*discovery.Product, []string) {
	p := &discovery.Product{}
	applied := make([]string, 0, len(obs.Fields))
	for field, value := range obs.Fields {
		if err := p.SetField(field, value); err != nil {
			r.logger.Debug("ignoring observed field", zap.String("field", field), zap.Error(err))
			continue
		}
		if !p.IsEmpty(field) {
			applied = append(applied, field)
		}
	}
	slices.Sort(applied)
	return p, applied
}

// merge fills empty fields from the observation and unions list fields.
func (r *Registrar) merge(p *discovery.Product, obs discovery.Observation) {
	for field, value := range obs.Fields {
		kind, ok := discovery.KindOf(field)
		if !ok {
			continue
		}
		if kind == discovery.KindList {
			incoming, ok := discovery.ToStrings(value)
			if !ok {
				continue
			}
			current, _ := p.FieldValue(field)
			merged := union(current.([]string), incoming)
			_ = p.SetField(field, merged)
			continue
		}
		if p.IsEmpty(field) {
			if err := p.SetField(field, value); err != nil {
				r.logger.Debug("ignoring observed field", zap.String("field", field), zap.Error(err))
			}
		}
	}
	p.Awards = mergeAwards(p.Awards, obs.Awards)
}

// union appends values not already present, comparing case-insensitively.
func union(current, incoming []string) []string {
	seen := make(map[string]struct{}, len(current)+len(incoming))
	out := make([]string, 0, len(current)+len(incoming))
	for _, list := range [][]string{current, incoming} {
		for _, v := range list {
			key := strings.ToLower(strings.TrimSpace(v))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

func mergeAwards(current, incoming []discovery.Award) []discovery.Award {
	key := func(a discovery.Award) string {
		return fmt.Sprintf("%s|%d|%s", strings.ToLower(a.Competition), a.Year, strings.ToLower(a.Medal))
	}
	seen := make(map[string]struct{}, len(current))
	for _, a := range current {
		seen[key(a)] = struct{}{}
	}
	for _, a := range incoming {
		if strings.TrimSpace(a.Competition) == "" {
			continue
		}
		if _, dup := seen[key(a)]; dup {
			continue
		}
		seen[key(a)] = struct{}{}
		current = append(current, a)
	}
	return current
}

// MarkProcessed records the processing outcome for a previously observed URL.
func (r *Registrar) MarkProcessed(ctx context.Context, rawURL, status, productID string) error {
	hash, err := r.normalizer.Hash(rawURL)
	if err != nil {
		return err
	}
	rec, err := r.urls.GetCrawledURL(ctx, hash)
	if err != nil {
		return fmt.Errorf("lookup crawled url: %w", err)
	}
	rec.ProcessingStatus = status
	if productID != "" {
		rec.ProductID = productID
		rec.IsProductPage = true
	}
	if err := r.urls.UpdateCrawledURL(ctx, rec); err != nil {
		return fmt.Errorf("update crawled url: %w", err)
	}
	return nil
}
