// Package constants provides shared constants used across the codebase.
package constants

// File upload constants
const (
	// MaxUploadSize is the maximum image upload size in bytes (16MB)
	MaxUploadSize = 16 << 20

	// MaxEmbeddingBodySize bounds JSON request bodies carrying raw embeddings (1MB)
	MaxEmbeddingBodySize = 1 << 20
)
