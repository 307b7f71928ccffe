package enrichment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

func newService(t *testing.T, f *fixture) *Service {
	t.Helper()
	return NewService(f.orchestrator(t, f.store, Config{Workers: 2}), f.store, Flags{}, nil)
}

func TestServiceEnrichByID(t *testing.T) {
	t.Parallel()

	f := newFixture()
	svc := newService(t, f)
	seedProduct(t, f.store, "p-1")
	require.Equal(t, AllCategories(), svc.DefaultFlags())

	res := svc.EnrichByID(context.Background(), "p-1", AllCategories())
	require.True(t, res.Success)

	missing := svc.EnrichByID(context.Background(), "nope", AllCategories())
	require.False(t, missing.Success)
	require.Equal(t, "nope", missing.ProductID)
	require.Contains(t, missing.Error, "not found")

	_, err := svc.Enrich(context.Background(), "nope", AllCategories())
	require.ErrorIs(t, err, discovery.ErrNotFound)
}

func TestServiceEnrichByIDsKeepsPositions(t *testing.T) {
	t.Parallel()

	f := newFixture()
	svc := newService(t, f)
	seedProduct(t, f.store, "p-1")
	seedProduct(t, f.store, "p-3")

	results := svc.EnrichByIDs(context.Background(), []string{"p-1", "missing", "p-3"}, AllCategories())
	require.Len(t, results, 3)
	require.True(t, results[0].Success)
	require.Equal(t, "missing", results[1].ProductID)
	require.False(t, results[1].Success)
	require.Equal(t, "p-3", results[2].ProductID)
	require.True(t, results[2].Success)
}

func TestServiceEnrichPending(t *testing.T) {
	t.Parallel()

	f := newFixture()
	svc := newService(t, f)
	seedProduct(t, f.store, "p-1")
	seedProduct(t, f.store, "p-2")
	seedProduct(t, f.store, "p-3")

	results, err := svc.EnrichPending(context.Background(), 2, AllCategories())
	require.NoError(t, err)
	require.Len(t, results, 2)

	left, err := f.store.ListProductsByStatus(context.Background(), discovery.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
}

func TestServiceSingleCategoryEntryPoints(t *testing.T) {
	t.Parallel()

	f := newFixture()
	svc := newService(t, f)
	seedProduct(t, f.store, "p-1")

	res := svc.EnrichPricesOnly(context.Background(), "p-1")
	require.True(t, res.Success)
	require.Equal(t, map[string]int{"prices": 2}, res.Counts)

	res = svc.EnrichImagesOnly(context.Background(), "p-1")
	require.True(t, res.Success)
	require.Equal(t, map[string]int{"images": 1}, res.Counts)
	require.Zero(t, f.reviews.Calls())
}
