package openai

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/poiesic/ragsync/ai"
	"github.com/tmc/langchaingo/embeddings"
)

// Embedder implements ai.Embedder against an OpenAI-compatible backend.
// Batching is delegated to langchaingo's embedder.
type Embedder struct {
	embedder   embeddings.Embedder
	backend    string
	dimensions int
	logger     *slog.Logger
}

// Option configures an Embedder.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config, opts ...Option) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	c := newClient(config, o.httpClient)

	embedder, err := embeddings.NewEmbedder(c,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:   embedder,
		backend:    c.backend,
		dimensions: config.Dimensions,
		logger:     o.logger.With("component", "openai-embedder", "backend", c.backend),
	}, nil
}

// NewEmbedder creates an embedder for the backend described by config.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config, opts ...Option) (ai.Embedder, error) {
	return newEmbedder(config, opts...)
}

// EmbedDocuments generates vectors for texts in batches of the configured size.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, &ai.EmbeddingError{Backend: e.backend, Message: "embedding count does not match input count"}
	}

	return vectors, nil
}

// EmbedQuery generates the vector for a single query text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimensions returns the configured vector length.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
