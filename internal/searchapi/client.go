// Package searchapi is the HTTP client for the third-party web search API
// (SerpAPI-compatible). It rate limits and retries calls, decodes the loosely
// typed payload, and can archive raw responses to a blob store.
package searchapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/hash/sha256"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/metrics"
)

// Config controls the search client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	MaxRetries int
	Backoff    time.Duration
	UserAgent  string
}

// Client calls the search API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	logger     *zap.Logger
	archive    discovery.BlobStore
	clock      discovery.Clock
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithArchive stores every successful raw payload in blob storage.
func WithArchive(store discovery.BlobStore, clock discovery.Clock) Option {
	return func(c *Client) {
		c.archive = store
		c.clock = clock
	}
}

// NewClient creates a search client.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "spiritswise-crawler/1.0"
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) requestURL(req Request) (string, error) {
	engine, ok := upstream[req.Engine]
	if !ok {
		return "", fmt.Errorf("unsupported engine %q", req.Engine)
	}
	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("engine", engine)
	if req.Num > 0 {
		params.Set("num", strconv.Itoa(req.Num))
	}
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/search.json?" + params.Encode(), nil
}

// Search runs one search, retrying transport failures, 429 and 5xx responses.
func (c *Client) Search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	reqURL, err := c.requestURL(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, reached(attempts, fmt.Errorf("rate limiter: %w", err))
		}
		attempts++
		body, retry, err := c.do(ctx, reqURL)
		if err == nil {
			resp, err := Decode(body)
			if err != nil {
				metrics.ObserveSearch(string(req.Engine), "error")
				return nil, reached(attempts, err)
			}
			metrics.ObserveSearch(string(req.Engine), "ok")
			if len(resp.Skipped) > 0 {
				c.logger.Warn("skipped malformed search results",
					zap.String("engine", string(req.Engine)),
					zap.Int("skipped", len(resp.Skipped)),
					zap.Error(resp.Skipped[0]),
				)
			}
			resp.Attempts = attempts
			c.store(ctx, req, body)
			return resp, nil
		}
		lastErr = err
		c.logger.Warn("search request failed",
			zap.String("engine", string(req.Engine)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if !retry || attempt == c.cfg.MaxRetries {
			break
		}
		if err := sleep(ctx, time.Duration(attempt)*c.cfg.Backoff); err != nil {
			return nil, reached(attempts, err)
		}
	}
	metrics.ObserveSearch(string(req.Engine), "error")
	return nil, reached(attempts, lastErr)
}

// reached marks err as having cost provider requests.
func reached(attempts int, err error) error {
	if attempts == 0 {
		return err
	}
	return &ProviderError{Attempts: attempts, Err: err}
}

// do executes one attempt. The bool reports whether the failure is retryable.
func (c *Client) do(ctx context.Context, reqURL string) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retry, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	return body, false, nil
}

// store archives the raw payload. Failures are logged and otherwise ignored.
func (c *Client) store(ctx context.Context, req Request, body []byte) {
	if c.archive == nil {
		return
	}
	now := time.Now().UTC()
	if c.clock != nil {
		now = c.clock.Now().UTC()
	}
	path := fmt.Sprintf("search/%s/%s/%s-%d.json",
		req.Engine, now.Format("2006/01/02"), sha256.Sum([]byte(req.Query))[:16], now.UnixNano())
	if _, err := c.archive.PutObject(ctx, path, "application/json", bytes.NewReader(body)); err != nil {
		c.logger.Warn("archive search payload failed", zap.String("path", path), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsUpstream reports whether err came back from the search provider.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
