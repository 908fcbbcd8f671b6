// Package worker contains the per-unit processors driven by the dispatcher:
// SearchWorker looks up panoramas for a sample point and MetadataWorker
// back-fills capture metadata for a panorama.
package worker
