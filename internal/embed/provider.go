// Package embed turns utterance text into fixed-dimension vectors for the
// semantic index. Two providers exist: an HTTP client for OpenAI-compatible
// embedding APIs, and a deterministic local provider for offline use.
package embed

import "context"

// Provider produces embeddings for memory text.
type Provider interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the vector width this provider produces.
	Dimension() int
}
