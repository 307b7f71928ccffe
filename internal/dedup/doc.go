// Package dedup keeps the pipeline from processing the same page or product
// twice. URLs are normalized and hashed; products are identified by a
// fingerprint over their identity fields, and repeat observations of a
// product are attached to the existing record as additional sources.
package dedup
