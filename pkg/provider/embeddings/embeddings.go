// Package embeddings defines the Provider interface for text-embedding backends.
//
// An embeddings provider maps text to dense float32 vectors. The journal layer
// uses these vectors to find reflections that are semantically related to what
// the person is writing about now, even when the wording differs.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality, reported by Dimensions. Vectors from different providers or
// models must never be compared against each other.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The returned
	// slice has length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in a single provider call.
	// The i-th result corresponds to texts[i]. On error no partial results are
	// returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider produces.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging and for
	// verifying that stored vectors match the configured model.
	ModelID() string
}
