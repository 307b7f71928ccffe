// Package metrics exposes Prometheus collectors for the discovery and enrichment pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchCallsTotal           *prometheus.CounterVec
	budgetDenialsTotal         *prometheus.CounterVec
	budgetRemaining            *prometheus.GaugeVec
	finderResultsTotal         *prometheus.CounterVec
	enrichmentsTotal           *prometheus.CounterVec
	completenessScore          prometheus.Histogram
	targetsExtractedTotal      prometheus.Counter
	productsResolvedTotal      *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spirits_search_calls_total",
				Help: "Search API calls, labeled by engine and outcome.",
			},
			[]string{"engine", "outcome"},
		)

		budgetDenialsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spirits_budget_denials_total",
				Help: "Search calls skipped because the API budget was exhausted.",
			},
			[]string{"api"},
		)

		budgetRemaining = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spirits_budget_remaining",
				Help: "Remaining API calls in the current window.",
			},
			[]string{"api", "window"},
		)

		finderResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spirits_finder_results_total",
				Help: "Finder invocations, labeled by finder and outcome.",
			},
			[]string{"finder", "outcome"},
		)

		enrichmentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spirits_enrichments_total",
				Help: "Product enrichment attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		completenessScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spirits_completeness_score",
				Help:    "Completeness score of products after enrichment.",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		)

		targetsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "spirits_targets_extracted_total",
				Help: "Discovery targets extracted from search results.",
			},
		)

		productsResolvedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spirits_products_resolved_total",
				Help: "Observations resolved against the product catalog, labeled by action.",
			},
			[]string{"action"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearch counts one search API call.
func ObserveSearch(engine, outcome string) {
	Init()
	searchCallsTotal.WithLabelValues(engine, outcome).Inc()
}

// ObserveBudgetDenied counts a call refused by the budget manager.
func ObserveBudgetDenied(api string) {
	Init()
	budgetDenialsTotal.WithLabelValues(api).Inc()
}

// SetBudgetRemaining records the remaining quota for a window ("hour" or "month").
func SetBudgetRemaining(api, window string, remaining int64) {
	Init()
	budgetRemaining.WithLabelValues(api, window).Set(float64(remaining))
}

// ObserveFinder counts one finder invocation.
func ObserveFinder(finder, outcome string) {
	Init()
	finderResultsTotal.WithLabelValues(finder, outcome).Inc()
}

// ObserveEnrichment counts an enrichment attempt and records the resulting score.
func ObserveEnrichment(success bool, score int) {
	Init()
	outcome := "failed"
	if success {
		outcome = "success"
		completenessScore.Observe(float64(score))
	}
	enrichmentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTargets adds n extracted targets.
func ObserveTargets(n int) {
	Init()
	targetsExtractedTotal.Add(float64(n))
}

// ObserveResolve counts a fingerprint resolution ("created" or "attached").
func ObserveResolve(action string) {
	Init()
	productsResolvedTotal.WithLabelValues(action).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
