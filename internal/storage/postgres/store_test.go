package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func sampleProduct() *discovery.Product {
	now := time.Unix(1700000000, 0).UTC()
	return &discovery.Product{
		ID:                "p-1",
		Fingerprint:       "fp-1",
		Name:              "Lagavulin 16",
		Brand:             "Lagavulin",
		PalateFlavors:     []string{"smoke", "peat"},
		CompletenessScore: 40,
		Status:            discovery.StatusEnriched,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS products").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	p := sampleProduct()
	data, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO products").
		WithArgs(p.ID, p.Fingerprint, p.Name, "enriched", 40, data, p.CreatedAt, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateProduct(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateProductDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO products").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.CreateProduct(context.Background(), sampleProduct())
	require.ErrorContains(t, err, "already exists")
	require.Error(t, store.CreateProduct(context.Background(), &discovery.Product{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductDecodesDocument(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	p := sampleProduct()
	data, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data FROM products WHERE id").
		WithArgs("p-1").
		WillReturnRows(mock.NewRows([]string{"data"}).AddRow(data))

	got, err := store.GetProduct(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, p, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductByFingerprintNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT data FROM products WHERE fingerprint").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetProductByFingerprint(context.Background(), "missing")
	require.ErrorIs(t, err, discovery.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProductQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT data FROM products WHERE id").
		WithArgs("p-1").
		WillReturnError(errors.New("connection reset"))

	_, err := store.GetProduct(context.Background(), "p-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, discovery.ErrNotFound)
}

func TestUpdateProduct(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	p := sampleProduct()

	mock.ExpectExec("UPDATE products").
		WithArgs(p.ID, p.Fingerprint, p.Name, "enriched", 40, pgxmock.AnyArg(), p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE products").
		WithArgs(p.ID, p.Fingerprint, p.Name, "enriched", 40, pgxmock.AnyArg(), p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.UpdateProduct(context.Background(), p))
	require.ErrorIs(t, store.UpdateProduct(context.Background(), p), discovery.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListProductsByStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	first := sampleProduct()
	second := sampleProduct()
	second.ID = "p-2"
	second.Fingerprint = "fp-2"
	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data\\s+FROM products\\s+WHERE status").
		WithArgs("pending", 5).
		WillReturnRows(mock.NewRows([]string{"data"}).AddRow(a).AddRow(b))

	got, err := store.ListProductsByStatus(context.Background(), discovery.StatusPending, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "p-1", got[0].ID)
	require.Equal(t, "p-2", got[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawledURLRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rec := &discovery.CrawledURL{
		URL:              "https://example.com/a",
		URLHash:          "h1",
		ContentHash:      "c1",
		FirstSeenAt:      now,
		LastCrawledAt:    now,
		ProcessingStatus: discovery.URLPending,
	}

	mock.ExpectExec("INSERT INTO crawled_urls").
		WithArgs("h1", rec.URL, pgxmock.AnyArg(), now, now, false, "pending", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("FROM crawled_urls").
		WithArgs("h1").
		WillReturnRows(mock.NewRows([]string{
			"url_hash", "url", "content_hash", "first_seen_at", "last_crawled_at",
			"is_product_page", "processing_status", "content_changed", "product_id",
		}).AddRow("h1", rec.URL, "c1", now, now, false, "pending", false, ""))
	mock.ExpectExec("UPDATE crawled_urls").
		WithArgs("h1", pgxmock.AnyArg(), now, true, "processed", true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ctx := context.Background()
	require.NoError(t, store.CreateCrawledURL(ctx, rec))

	got, err := store.GetCrawledURL(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, rec, got)

	got.IsProductPage = true
	got.ContentChanged = true
	got.ProcessingStatus = discovery.URLProcessed
	require.NoError(t, store.UpdateCrawledURL(ctx, got))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCrawledURLNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM crawled_urls").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetCrawledURL(context.Background(), "nope")
	require.ErrorIs(t, err, discovery.ErrNotFound)

	mock.ExpectExec("UPDATE crawled_urls").
		WithArgs("nope", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = store.UpdateCrawledURL(context.Background(), &discovery.CrawledURL{URLHash: "nope"})
	require.ErrorIs(t, err, discovery.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
