package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/troeske/spiritswise-web-crawler-sub002/internal/budget"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/discovery"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/enrichment"
	"github.com/troeske/spiritswise-web-crawler-sub002/internal/metrics"
)

const (
	defaultPendingLimit = 10
	maxBatchSize        = 100
	readyTimeout        = 2 * time.Second
)

// Enricher runs enrichment on stored products.
type Enricher interface {
	Enrich(ctx context.Context, id string, flags enrichment.Flags) (enrichment.Result, error)
	EnrichByIDs(ctx context.Context, ids []string, flags enrichment.Flags) []enrichment.Result
	EnrichPending(ctx context.Context, limit int, flags enrichment.Flags) ([]enrichment.Result, error)
	DefaultFlags() enrichment.Flags
}

// BudgetReporter reports quota usage for a search API.
type BudgetReporter interface {
	Usage(ctx context.Context, api string) (budget.Usage, error)
}

// ReadinessCheck reports whether a downstream dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// Options tunes the server.
type Options struct {
	// APIKey protects the /v1 routes when set.
	APIKey         string
	RequestTimeout time.Duration
	// Checks run on /readyz, keyed by dependency name.
	Checks map[string]ReadinessCheck
}

// Server wires HTTP handlers to the enrichment service and budget manager.
type Server struct {
	router   chi.Router
	enricher Enricher
	budgets  BudgetReporter
	checks   map[string]ReadinessCheck
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(enricher Enricher, budgets BudgetReporter, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		enricher: enricher,
		budgets:  budgets,
		checks:   opts.Checks,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Get("/budget/{api}", s.getBudget)
		r.Post("/products/{id}/enrich", s.enrichProduct)
		r.Post("/enrich/batch", s.enrichBatch)
		r.Post("/enrich/pending", s.enrichPending)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := map[string]string{}
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("dependency", name), zap.Error(err))
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getBudget(w http.ResponseWriter, r *http.Request) {
	api := chi.URLParam(r, "api")
	usage, err := s.budgets.Usage(r.Context(), api)
	if err != nil {
		s.logger.Warn("budget usage failed", zap.String("api", api), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "budget usage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) enrichProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flags, err := s.flags(r.URL.Query().Get("only"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.enricher.Enrich(r.Context(), id, flags)
	if err != nil {
		if errors.Is(err, discovery.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchRequest struct {
	IDs  []string `json:"ids"`
	Only string   `json:"only"`
}

func (s *Server) enrichBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	if len(req.IDs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, "too many ids")
		return
	}
	flags, err := s.flags(req.Only)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results := s.enricher.EnrichByIDs(r.Context(), req.IDs, flags)
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type pendingRequest struct {
	Limit int    `json:"limit"`
	Only  string `json:"only"`
}

func (s *Server) enrichPending(w http.ResponseWriter, r *http.Request) {
	var req pendingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = defaultPendingLimit
	}
	if req.Limit > maxBatchSize {
		req.Limit = maxBatchSize
	}
	flags, err := s.flags(req.Only)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.enricher.EnrichPending(r.Context(), req.Limit, flags)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// flags resolves an "only" selector, falling back to the configured categories.
func (s *Server) flags(only string) (enrichment.Flags, error) {
	if only == "" {
		return s.enricher.DefaultFlags(), nil
	}
	return enrichment.ParseOnly(only)
}
