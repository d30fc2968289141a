package ai

import "context"

// Embedder generates dense vectors from text for similarity search.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedDocuments returns one vector per text, in input order.
	// Every vector has Dimensions() elements.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery returns the vector for a single query text.
	// It is equivalent to EmbedDocuments([]string{text})[0].
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the length of produced vectors.
	Dimensions() int
}
