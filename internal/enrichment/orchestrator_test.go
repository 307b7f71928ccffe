package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/finder"
	pubmemory "github.com/troeske/spiritswise-web-crawler-sub002/internal/publisher/memory"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/scoring"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/searchapi"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/storage/memory"
)

var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

type fakeSource[T any] struct {
	mu     sync.Mutex
	result finder.Result[T]
	calls  int
}

func (f *fakeSource[T]) Find(_ context.Context, _ *discovery.Product, _ int) finder.Result[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

func (f *fakeSource[T]) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// flakyStore fails UpdateProduct for the calls listed in failOn (1-based).
type flakyStore struct {
	*memory.ProductStore
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (s *flakyStore) UpdateProduct(ctx context.Context, p *discovery.Product) error {
	s.mu.Lock()
	s.calls++
	fail := s.failOn[s.calls]
	s.mu.Unlock()
	if fail {
		return errors.New("write rejected")
	}
	return s.ProductStore.UpdateProduct(ctx, p)
}

type fixture struct {
	prices   *fakeSource[discovery.PriceEntry]
	reviews  *fakeSource[discovery.RatingEntry]
	images   *fakeSource[discovery.ImageEntry]
	articles *fakeSource[discovery.ArticleEntry]
	store    *memory.ProductStore
	pub      *pubmemory.Publisher
}

func newFixture() *fixture {
	return &fixture{
		prices: &fakeSource[discovery.PriceEntry]{result: finder.Result[discovery.PriceEntry]{Entries: []discovery.PriceEntry{
			{Price: 45.99, Currency: "USD", Retailer: "Total Wine", URL: "https://totalwine.example/l16"},
			{Price: 39.99, Currency: "USD", Retailer: "Drizly", URL: "https://drizly.example/l16"},
		}}},
		reviews: &fakeSource[discovery.RatingEntry]{result: finder.Result[discovery.RatingEntry]{Entries: []discovery.RatingEntry{
			{Source: "whiskyadvocate.com", Score: 94, MaxScore: 100, URL: "https://whiskyadvocate.com/l16", Confidence: 0.9},
			{Source: "whiskyadvocate.com", Score: 90, MaxScore: 100, URL: "https://whiskyadvocate.com/l16-2", Confidence: 0.9},
			{Source: "whiskybase.com", Score: 4.5, MaxScore: 5, URL: "https://whiskybase.com/l16", Confidence: 0.9},
		}}},
		images: &fakeSource[discovery.ImageEntry]{result: finder.Result[discovery.ImageEntry]{Entries: []discovery.ImageEntry{
			{URL: "https://img.example/bottle.jpg", Type: discovery.ImageBottle},
		}}},
		articles: &fakeSource[discovery.ArticleEntry]{result: finder.Result[discovery.ArticleEntry]{Entries: []discovery.ArticleEntry{
			{Title: "Lagavulin 16 revisited", URL: "https://news.example/l16", AgeDays: 10},
		}}},
		store: memory.NewProductStore(),
		pub:   pubmemory.New(),
	}
}

func (f *fixture) finders() Finders {
	return Finders{Prices: f.prices, Reviews: f.reviews, Images: f.images, Articles: f.articles}
}

func (f *fixture) orchestrator(t *testing.T, store discovery.ProductStore, cfg Config) *Orchestrator {
	t.Helper()
	cfg.Topic = "enrichment"
	o, err := NewOrchestrator(f.finders(), store, f.pub, fakeClock{testNow}, cfg, nil)
	require.NoError(t, err)
	return o
}

func seedProduct(t *testing.T, store discovery.ProductStore, id string) *discovery.Product {
	t.Helper()
	p := &discovery.Product{
		ID:            id,
		Fingerprint:   "fp-" + id,
		Name:          "Lagavulin 16 Year Old",
		Brand:         "Lagavulin",
		ProductType:   "whiskey",
		PalateFlavors: []string{"smoke", "peat"},
		Status:        discovery.StatusPending,
		CreatedAt:     testNow.Add(-time.Hour),
	}
	require.NoError(t, store.CreateProduct(context.Background(), p))
	return p
}

func TestNewOrchestratorValidates(t *testing.T) {
	t.Parallel()

	_, err := NewOrchestrator(Finders{}, nil, nil, fakeClock{testNow}, Config{}, nil)
	require.Error(t, err)
	_, err = NewOrchestrator(Finders{}, memory.NewProductStore(), nil, nil, Config{}, nil)
	require.Error(t, err)
}

func TestEnrichProductMergesAllCategories(t *testing.T) {
	t.Parallel()

	f := newFixture()
	o := f.orchestrator(t, f.store, Config{})
	p := seedProduct(t, f.store, "p-1")

	res := o.EnrichProduct(context.Background(), p, AllCategories())
	require.True(t, res.Success, res.Error)
	require.Empty(t, res.Error)
	require.Equal(t, map[string]int{"prices": 2, "reviews": 2, "images": 1, "articles": 1}, res.Counts)

	stored, err := f.store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, stored.Prices, 2)
	require.NotNil(t, stored.BestPrice)
	require.InDelta(t, 39.99, stored.BestPrice.Price, 0.001)
	require.Equal(t, "Drizly", stored.BestPrice.Retailer)
	require.Len(t, stored.Ratings, 2, "first rating per source wins")
	require.InDelta(t, 94.0, stored.Ratings[0].Score, 0.001)
	require.Equal(t, 2, stored.SourceCount)
	require.Len(t, stored.Images, 1)
	require.Len(t, stored.PressMentions, 1)
	require.NotNil(t, stored.LastEnrichedAt)
	require.Equal(t, testNow, *stored.LastEnrichedAt)

	require.Equal(t, scoring.Score(stored), stored.CompletenessScore)
	require.Equal(t, stored.CompletenessScore, res.Score)
	require.Equal(t, scoring.DefaultThresholds().StatusFor(res.Score), stored.Status)
	require.Equal(t, stored.Status, res.Status)

	msgs := f.pub.MessagesFor("enrichment")
	require.Len(t, msgs, 1)
	ev, ok := msgs[0].Payload.(Event)
	require.True(t, ok)
	require.Equal(t, "p-1", ev.ProductID)
	require.True(t, ev.Success)
}

func TestEnrichProductIsIdempotentForRepeatedEntries(t *testing.T) {
	t.Parallel()

	f := newFixture()
	o := f.orchestrator(t, f.store, Config{})
	p := seedProduct(t, f.store, "p-1")

	first := o.EnrichProduct(context.Background(), p, AllCategories())
	require.True(t, first.Success)
	second := o.EnrichProduct(context.Background(), p, AllCategories())
	require.True(t, second.Success)
	require.Equal(t, map[string]int{"prices": 0, "reviews": 0, "images": 0, "articles": 0}, second.Counts)
	require.Len(t, p.Prices, 2)
	require.Len(t, p.Ratings, 2)
}

func TestEnrichProductHonorsFlags(t *testing.T) {
	t.Parallel()

	f := newFixture()
	o := f.orchestrator(t, f.store, Config{})
	p := seedProduct(t, f.store, "p-1")

	res := o.EnrichProduct(context.Background(), p, Flags{Prices: true})
	require.True(t, res.Success)
	require.Equal(t, map[string]int{"prices": 2}, res.Counts)
	require.Equal(t, 1, f.prices.Calls())
	require.Zero(t, f.reviews.Calls())
	require.Zero(t, f.images.Calls())
	require.Zero(t, f.articles.Calls())
}

func TestEnrichProductToleratesFinderFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.prices.result = finder.Result[discovery.PriceEntry]{Err: errors.New("upstream 502")}
	f.images.result = finder.Result[discovery.ImageEntry]{Err: searchapi.ErrBudgetExhausted}
	o := f.orchestrator(t, f.store, Config{})
	p := seedProduct(t, f.store, "p-1")

	res := o.EnrichProduct(context.Background(), p, AllCategories())
	require.True(t, res.Success)
	require.Equal(t, 0, res.Counts["prices"])
	require.Equal(t, 0, res.Counts["images"])
	require.Equal(t, []string{"images"}, res.Skipped)
	require.Equal(t, 2, res.Counts["reviews"])
	require.Nil(t, p.BestPrice)
}

func TestEnrichProductPersistFailureMarksAttemptFailed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	store := &flakyStore{ProductStore: f.store, failOn: map[int]bool{1: true}}
	o := f.orchestrator(t, store, Config{})
	p := seedProduct(t, f.store, "p-1")

	res := o.EnrichProduct(context.Background(), p, AllCategories())
	require.False(t, res.Success)
	require.Contains(t, res.Error, "aggregate prices")
	require.Contains(t, res.Error, "write rejected")
	require.Equal(t, discovery.StatusFailed, res.Status)
	require.Equal(t, 1, res.Counts["images"], "remaining categories still run")

	stored, err := f.store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, discovery.StatusFailed, stored.Status)
	require.Len(t, stored.Prices, 2, "later writes carry the merged prices")

	ev := f.pub.Messages()[0].Payload.(Event)
	require.False(t, ev.Success)
}

func TestEnrichProductRejectsInvalidProduct(t *testing.T) {
	t.Parallel()

	f := newFixture()
	o := f.orchestrator(t, f.store, Config{})

	res := o.EnrichProduct(context.Background(), &discovery.Product{ID: "nameless"}, AllCategories())
	require.False(t, res.Success)
	require.Contains(t, res.Error, discovery.ErrInvalidProduct.Error())
	require.Zero(t, f.prices.Calls())

	res = o.EnrichProduct(context.Background(), nil, AllCategories())
	require.False(t, res.Success)
}

func TestEnrichProductPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.pub.FailWith(errors.New("pubsub down"))
	o := f.orchestrator(t, f.store, Config{})
	p := seedProduct(t, f.store, "p-1")

	res := o.EnrichProduct(context.Background(), p, AllCategories())
	require.True(t, res.Success)
}

func TestParallelFindersMatchSequential(t *testing.T) {
	t.Parallel()

	seq := newFixture()
	par := newFixture()
	a := seedProduct(t, seq.store, "p-1")
	b := seedProduct(t, par.store, "p-1")

	ra := seq.orchestrator(t, seq.store, Config{}).EnrichProduct(context.Background(), a, AllCategories())
	rb := par.orchestrator(t, par.store, Config{ParallelFinders: true}).EnrichProduct(context.Background(), b, AllCategories())
	require.Equal(t, ra, rb)
	require.Equal(t, a, b)
}

func TestEnrichBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	o := f.orchestrator(t, f.store, Config{Workers: 2})
	products := []*discovery.Product{
		seedProduct(t, f.store, "p-1"),
		{ID: "broken"},
		seedProduct(t, f.store, "p-3"),
	}

	results := o.EnrichBatch(context.Background(), products, AllCategories())
	require.Len(t, results, 3)
	require.Equal(t, "p-1", results[0].ProductID)
	require.True(t, results[0].Success)
	require.Equal(t, "broken", results[1].ProductID)
	require.False(t, results[1].Success)
	require.Equal(t, "p-3", results[2].ProductID)
	require.True(t, results[2].Success)
}

func TestEnrichBatchCanceledContext(t *testing.T) {
	t.Parallel()

	f := newFixture()
	o := f.orchestrator(t, f.store, Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := o.EnrichBatch(ctx, []*discovery.Product{seedProduct(t, f.store, "p-1")}, AllCategories())
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Equal(t, "p-1", results[0].ProductID)
}

func TestParseOnly(t *testing.T) {
	t.Parallel()

	flags, err := ParseOnly("")
	require.NoError(t, err)
	require.Equal(t, AllCategories(), flags)

	flags, err = ParseOnly("Prices")
	require.NoError(t, err)
	require.Equal(t, Flags{Prices: true}, flags)

	flags, err = ParseOnly("images")
	require.NoError(t, err)
	require.Equal(t, Flags{Images: true}, flags)

	_, err = ParseOnly("wine")
	require.Error(t, err)
}
