// Package embed generates text embeddings through an OpenAI-compatible
// embeddings endpoint, with a persistent content-hash cache for batch
// indexing and an in-memory LRU for repeated queries.
package embed

import (
	"context"
	"time"
)

// Request limits for the remote embeddings endpoint.
const (
	// DefaultRequestTimeout bounds a single embeddings API call.
	DefaultRequestTimeout = 180 * time.Second

	// DefaultMaxRetries is the number of retries after a failed call.
	DefaultMaxRetries = 2

	// rateLimitDelayStep is multiplied by the attempt number after a 429.
	rateLimitDelayStep = 5 * time.Second

	// timeoutRetryDelay follows a request timeout.
	timeoutRetryDelay = 2 * time.Second

	// genericRetryDelay follows any other transient failure.
	genericRetryDelay = 1 * time.Second
)

// Embedder generates embeddings for note chunks and queries.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector
	// per input text in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
