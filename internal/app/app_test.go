package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	memoryblob "github.com/troeske/spiritswise-web-crawler-sub002/internal/blob/memory"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/config"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/enrichment"
	memorypublisher "github.com/troeske/spiritswise-web-crawler-sub002/internal/publisher/memory"
)

const targetURL = "https://www.whiskyadvocate.com/lagavulin-16-review"

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type staticHandler struct{}

func (staticHandler) HandleTarget(_ context.Context, t discovery.DiscoveryTarget) ([]discovery.Observation, error) {
	if t.URL != targetURL {
		return nil, nil
	}
	return []discovery.Observation{{
		Fields: map[string]any{
			discovery.FieldName:        "Lagavulin 16 Year Old",
			discovery.FieldBrand:       "Lagavulin",
			discovery.FieldProductType: "whiskey",
			discovery.FieldABV:         43.0,
		},
		Confidence: 0.8,
	}}, nil
}

func newSearchServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var payload map[string]any
		switch r.URL.Query().Get("engine") {
		case "google":
			payload = map[string]any{"organic_results": []map[string]any{
				{"position": 1, "title": "Lagavulin 16 review", "link": targetURL, "snippet": "A peaty review"},
				{"position": 2, "title": "Lagavulin on Facebook", "link": "https://facebook.com/lagavulin"},
			}}
		case "google_shopping":
			payload = map[string]any{"shopping_results": []map[string]any{
				{"title": "Lagavulin 16 Year Old Islay Single Malt", "price": "$89.99", "source": "Shop", "link": "https://shop.example/lagavulin"},
			}}
		default:
			payload = map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, searchURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Search.BaseURL = searchURL
	cfg.Search.APIKey = "test-key"
	cfg.Search.MaxRetries = 1
	cfg.Search.RPS = 1000
	cfg.Search.Burst = 100
	cfg.Blob.Type = "memory"
	cfg.Search.Archive = true
	cfg.Discovery.QueriesPerRun = 2
	return cfg
}

func TestBuildRunsDiscoveryAndEnrichment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t, newSearchServer(t).URL)
	a, err := Build(ctx, cfg, zap.NewNop(),
		WithClock(fixedClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}),
		WithTargetHandler(staticHandler{}),
	)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.Equal(t, []string{"gin", "port_wine", "rum", "whiskey"}, a.Categories())

	summary, err := a.Worker().RunCategory(ctx, "whiskey")
	require.NoError(t, err)
	require.Equal(t, 2, summary.Searches)
	require.Equal(t, 1, summary.NewURLs)
	require.Equal(t, 1, summary.ProductsCreated)

	pending, err := a.Products().ListProductsByStatus(ctx, discovery.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	results, err := a.Enrichment().EnrichPending(ctx, 10, enrichment.Flags{Prices: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success, results[0].Error)
	require.Equal(t, 1, results[0].Counts["prices"])

	stored, err := a.Products().GetProduct(ctx, pending[0].ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BestPrice)
	require.InDelta(t, 89.99, stored.BestPrice.Price, 0.001)
	require.NotEqual(t, discovery.StatusPending, stored.Status)

	pub, ok := a.Publisher().(*memorypublisher.Publisher)
	require.True(t, ok)
	require.Len(t, pub.MessagesFor(cfg.PubSub.DiscoveryTopic), 1)
	require.Len(t, pub.MessagesFor(cfg.PubSub.Topic), 1)

	blobs, ok := a.blob.(*memoryblob.Store)
	require.True(t, ok)
	require.Len(t, blobs.Paths(), 3)

	usage, err := a.Budget().Usage(ctx, cfg.Search.APIName)
	require.NoError(t, err)
	require.Equal(t, int64(3), usage.Hourly.Used)
}

func TestHandlerServesOperationalRoutes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, newSearchServer(t).URL)
	cfg.Server.APIKey = "secret"
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	h := a.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/budget/serpapi", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/budget/serpapi", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"api":"serpapi"`))
}

func TestBuildWithRedisCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := testConfig(t, newSearchServer(t).URL)
	cfg.Cache.Type = "redis"
	cfg.Cache.RedisURL = "redis://" + mr.Addr()

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	h := a.Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = a.Worker().RunCategory(context.Background(), "gin")
	require.NoError(t, err)
	keys := mr.Keys()
	require.NotEmpty(t, keys)
	for _, k := range keys {
		require.True(t, strings.HasPrefix(k, cfg.Cache.KeyPrefix), k)
	}

	mr.Close()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuildFailsOnUnreachableRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Cache.Type = "redis"
	cfg.Cache.RedisURL = "redis://" + addr

	_, err := Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "redis cache init failed")
	require.ErrorIs(t, err, discovery.ErrCacheUnavailable)
}

func TestBuildLocalBlobStore(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, newSearchServer(t).URL)
	cfg.Blob.Type = "local"
	cfg.Blob.BaseDir = t.TempDir()

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NotNil(t, a.blob)
}
