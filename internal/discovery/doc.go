// Package discovery holds the domain model shared by the discovery and
// enrichment pipeline: products, crawled URLs, ranked targets, source
// contributions and the ports that storage, cache and search adapters implement.
package discovery
