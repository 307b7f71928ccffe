package enrichment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

// Service exposes the batch entry points used by the CLI and the API.
type Service struct {
	orch   *Orchestrator
	store  discovery.ProductStore
	flags  Flags
	logger *zap.Logger
}

// NewService builds a Service. defaults applies when a caller does not select categories.
func NewService(orch *Orchestrator, store discovery.ProductStore, defaults Flags, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults == (Flags{}) {
		defaults = AllCategories()
	}
	return &Service{orch: orch, store: store, flags: defaults, logger: logger}
}

// DefaultFlags returns the configured category selection.
func (s *Service) DefaultFlags() Flags { return s.flags }

// EnrichByID enriches one stored product.
func (s *Service) EnrichByID(ctx context.Context, id string, flags Flags) Result {
	res, err := s.Enrich(ctx, id, flags)
	if err != nil {
		return failed(id, err)
	}
	return res
}

// Enrich is EnrichByID with load failures returned as an error, so callers
// can tell a missing product apart from a failed enrichment.
func (s *Service) Enrich(ctx context.Context, id string, flags Flags) (Result, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load product: %w", err)
	}
	return s.orch.EnrichProduct(ctx, p, flags), nil
}

// EnrichByIDs enriches each stored product. Products that cannot be loaded
// get a failed Result in their position.
func (s *Service) EnrichByIDs(ctx context.Context, ids []string, flags Flags) []Result {
	results := make([]Result, len(ids))
	products := make([]*discovery.Product, 0, len(ids))
	positions := make([]int, 0, len(ids))
	for i, id := range ids {
		p, err := s.store.GetProduct(ctx, id)
		if err != nil {
			s.logger.Warn("skip product: load failed", zap.String("product_id", id), zap.Error(err))
			results[i] = failed(id, fmt.Errorf("load product: %w", err))
			continue
		}
		products = append(products, p)
		positions = append(positions, i)
	}
	for j, res := range s.orch.EnrichBatch(ctx, products, flags) {
		results[positions[j]] = res
	}
	return results
}

// EnrichPending enriches up to limit products still in pending status.
func (s *Service) EnrichPending(ctx context.Context, limit int, flags Flags) ([]Result, error) {
	products, err := s.store.ListProductsByStatus(ctx, discovery.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending products: %w", err)
	}
	s.logger.Info("enriching pending products", zap.Int("count", len(products)))
	return s.orch.EnrichBatch(ctx, products, flags), nil
}

// EnrichPricesOnly refreshes prices for one product.
func (s *Service) EnrichPricesOnly(ctx context.Context, id string) Result {
	return s.EnrichByID(ctx, id, Flags{Prices: true})
}

// EnrichImagesOnly refreshes images for one product.
func (s *Service) EnrichImagesOnly(ctx context.Context, id string) Result {
	return s.EnrichByID(ctx, id, Flags{Images: true})
}

func failed(id string, err error) Result {
	return Result{ProductID: id, Counts: map[string]int{}, Error: err.Error()}
}
