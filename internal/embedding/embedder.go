// Package embedding provides text embedding via an external embedding
// service, with batching, retries, and caching.
package embedding

import "context"

// Embedder produces vector embeddings for text. Output order and length
// match the input; vectors are normalized to unit length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
