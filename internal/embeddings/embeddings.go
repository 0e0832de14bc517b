// Package embeddings defines the embedding provider boundary.
package embeddings

import "context"

// Provider generates fixed-dimension vectors for text.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result is
	// the same length as the input and preserves input order; callers
	// pair result[i] with texts[i] positionally.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name for logging and metrics.
	Name() string

	// Dimension returns the embedding dimension.
	Dimension() int

	// MaxBatchSize returns the maximum texts sent per upstream request.
	MaxBatchSize() int
}
