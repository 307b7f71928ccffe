// Package postgres provides Postgres-backed persistence for products and crawled URLs.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
)

// Schema creates the tables used by Store. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS products (
	id                 TEXT PRIMARY KEY,
	fingerprint        TEXT NOT NULL UNIQUE,
	name               TEXT NOT NULL,
	status             TEXT NOT NULL,
	completeness_score INTEGER NOT NULL DEFAULT 0,
	data               JSONB NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS products_status_created_idx ON products (status, created_at);

CREATE TABLE IF NOT EXISTS crawled_urls (
	url_hash          TEXT PRIMARY KEY,
	url               TEXT NOT NULL,
	content_hash      TEXT,
	first_seen_at     TIMESTAMPTZ NOT NULL,
	last_crawled_at   TIMESTAMPTZ NOT NULL,
	is_product_page   BOOLEAN NOT NULL DEFAULT FALSE,
	processing_status TEXT NOT NULL,
	content_changed   BOOLEAN NOT NULL DEFAULT FALSE,
	product_id        TEXT REFERENCES products (id)
);
`

const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements discovery.ProductStore and discovery.CrawledURLStore.
// Product documents are stored as JSONB next to the columns used for lookups.
type Store struct {
	pool pool
}

// New connects to Postgres using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// GetProduct fetches a product by ID.
func (s *Store) GetProduct(ctx context.Context, id string) (*discovery.Product, error) {
	return s.getProduct(ctx, `SELECT data FROM products WHERE id = $1`, id)
}

// GetProductByFingerprint fetches a product by fingerprint.
func (s *Store) GetProductByFingerprint(ctx context.Context, fingerprint string) (*discovery.Product, error) {
	return s.getProduct(ctx, `SELECT data FROM products WHERE fingerprint = $1`, fingerprint)
}

func (s *Store) getProduct(ctx context.Context, query string, arg string) (*discovery.Product, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, query, arg).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", arg, discovery.ErrNotFound)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return decodeProduct(data)
}

// CreateProduct inserts a new product.
func (s *Store) CreateProduct(ctx context.Context, product *discovery.Product) error {
	if product == nil || product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	query := `
INSERT INTO products (
	id,
	fingerprint,
	name,
	status,
	completeness_score,
	data,
	created_at,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)`
	_, err = s.pool.Exec(ctx, query,
		product.ID,
		product.Fingerprint,
		product.Name,
		string(product.Status),
		product.CompletenessScore,
		data,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("product %s already exists: %w", product.ID, err)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// UpdateProduct replaces an existing product.
func (s *Store) UpdateProduct(ctx context.Context, product *discovery.Product) error {
	if product == nil || product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	query := `
UPDATE products
SET fingerprint = $2,
	name = $3,
	status = $4,
	completeness_score = $5,
	data = $6,
	updated_at = $7
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		product.ID,
		product.Fingerprint,
		product.Name,
		string(product.Status),
		product.CompletenessScore,
		data,
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", product.ID, discovery.ErrNotFound)
	}
	return nil
}

// ListProductsByStatus returns up to limit products with the given status, oldest first.
// A limit of zero or less returns every match.
func (s *Store) ListProductsByStatus(
	ctx context.Context,
	status discovery.ProductStatus,
	limit int,
) ([]*discovery.Product, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	query := `
SELECT data
FROM products
WHERE status = $1
ORDER BY created_at, id
LIMIT $2`
	rows, err := s.pool.Query(ctx, query, string(status), lim)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []*discovery.Product
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		p, err := decodeProduct(data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return out, nil
}

// GetCrawledURL fetches a crawled URL by hash.
func (s *Store) GetCrawledURL(ctx context.Context, urlHash string) (*discovery.CrawledURL, error) {
	query := `
SELECT url_hash, url, COALESCE(content_hash, ''), first_seen_at, last_crawled_at,
	is_product_page, processing_status, content_changed, COALESCE(product_id, '')
FROM crawled_urls
WHERE url_hash = $1`
	var rec discovery.CrawledURL
	err := s.pool.QueryRow(ctx, query, urlHash).Scan(
		&rec.URLHash,
		&rec.URL,
		&rec.ContentHash,
		&rec.FirstSeenAt,
		&rec.LastCrawledAt,
		&rec.IsProductPage,
		&rec.ProcessingStatus,
		&rec.ContentChanged,
		&rec.ProductID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("crawled url %s: %w", urlHash, discovery.ErrNotFound)
		}
		return nil, fmt.Errorf("get crawled url: %w", err)
	}
	return &rec, nil
}

// CreateCrawledURL inserts a crawled URL.
func (s *Store) CreateCrawledURL(ctx context.Context, rec *discovery.CrawledURL) error {
	if rec == nil || rec.URLHash == "" {
		return fmt.Errorf("url hash is required")
	}
	query := `
INSERT INTO crawled_urls (
	url_hash,
	url,
	content_hash,
	first_seen_at,
	last_crawled_at,
	is_product_page,
	processing_status,
	content_changed,
	product_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`
	_, err := s.pool.Exec(ctx, query,
		rec.URLHash,
		rec.URL,
		nullable(rec.ContentHash),
		rec.FirstSeenAt,
		rec.LastCrawledAt,
		rec.IsProductPage,
		rec.ProcessingStatus,
		rec.ContentChanged,
		nullable(rec.ProductID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("crawled url %s already exists: %w", rec.URLHash, err)
		}
		return fmt.Errorf("insert crawled url: %w", err)
	}
	return nil
}

// UpdateCrawledURL updates a crawled URL.
func (s *Store) UpdateCrawledURL(ctx context.Context, rec *discovery.CrawledURL) error {
	if rec == nil || rec.URLHash == "" {
		return fmt.Errorf("url hash is required")
	}
	query := `
UPDATE crawled_urls
SET content_hash = $2,
	last_crawled_at = $3,
	is_product_page = $4,
	processing_status = $5,
	content_changed = $6,
	product_id = $7
WHERE url_hash = $1`
	tag, err := s.pool.Exec(ctx, query,
		rec.URLHash,
		nullable(rec.ContentHash),
		rec.LastCrawledAt,
		rec.IsProductPage,
		rec.ProcessingStatus,
		rec.ContentChanged,
		nullable(rec.ProductID),
	)
	if err != nil {
		return fmt.Errorf("update crawled url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("crawled url %s: %w", rec.URLHash, discovery.ErrNotFound)
	}
	return nil
}

func decodeProduct(data []byte) (*discovery.Product, error) {
	var p discovery.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return &p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
