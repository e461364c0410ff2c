// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultTolerance is the default maximum Euclidean distance for a positive identification.
	// Lower values = stricter matching
	DefaultTolerance = 0.6

	// DefaultEmbeddingDim is the embedding length produced by dlib-style face encoders
	DefaultEmbeddingDim = 128

	// DefaultNearestLimit is the default number of ranked candidates returned for diagnostics
	DefaultNearestLimit = 5
)

// HNSW index parameters for 128-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWCandidates is the number of neighbours fetched from the graph
	// for a ranked candidate list.
	HNSWCandidates = 32

	// HNSWMinRecords is the store size below which candidate lists are
	// ranked by exact scan even when the HNSW index is enabled.
	HNSWMinRecords = 1000
)

// Import constants
const (
	// DefaultImportConcurrency is the default number of parallel import workers
	DefaultImportConcurrency = 5

	// DownloadTimeoutSeconds bounds a single image download during import
	DownloadTimeoutSeconds = 30
)
