// Package api hosts the operational HTTP server. Routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/budget/{api} for search quota usage.
//   - POST /v1/products/{id}/enrich, /v1/enrich/batch and /v1/enrich/pending
//     to trigger enrichment.
package api
