package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/core"
)

// DefaultVectorSize is the fixed vector size of the chunk collection.
const DefaultVectorSize = 1024

var (
	// ErrStoreRequired is returned when an index is created without a store.
	ErrStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when an index is created without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")
)

// Index embeds chunks and stores them in a Store.
type Index struct {
	store      Store
	embedder   ai.Embedder
	vectorSize int
	logger     *slog.Logger

	mu      sync.Mutex
	ensured bool
}

// Option configures an Index.
type Option func(*Index) error

// WithVectorSize sets the collection vector size.
// Default is DefaultVectorSize.
func WithVectorSize(size int) Option {
	return func(ix *Index) error {
		if size < 1 {
			return fmt.Errorf("vector size must be positive, got %d", size)
		}
		ix.vectorSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// NewIndex creates an Index. The embedder's dimensionality must equal the
// vector size.
func NewIndex(store Store, embedder ai.Embedder, opts ...Option) (*Index, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	ix := &Index{
		store:      store,
		embedder:   embedder,
		vectorSize: DefaultVectorSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.logger = ix.logger.With("component", "vector-index")

	if embedder.Dimensions() != ix.vectorSize {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, index expects %d",
			ErrDimensionMismatch, embedder.Dimensions(), ix.vectorSize)
	}

	return ix, nil
}

// VectorSize returns the collection vector size.
func (ix *Index) VectorSize() int {
	return ix.vectorSize
}

// ensure creates the collection on first use. Success is remembered; a
// failure is retried on the next call.
func (ix *Index) ensure(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.ensured {
		return nil
	}
	if err := ix.store.EnsureCollection(ctx, uint64(ix.vectorSize)); err != nil {
		return wrapIndexErr("ensuring collection", err)
	}
	ix.ensured = true
	return nil
}

// withCollection runs op after ensure. If the store reports the collection
// missing, the cached ensure is dropped and op is retried once.
func (ix *Index) withCollection(ctx context.Context, op func() error) error {
	if err := ix.ensure(ctx); err != nil {
		return err
	}
	err := op()
	if !errors.Is(err, ErrCollectionNotFound) {
		return err
	}

	ix.logger.Warn("collection missing, recreating", "err", err)
	ix.mu.Lock()
	ix.ensured = false
	ix.mu.Unlock()

	if err := ix.ensure(ctx); err != nil {
		return err
	}
	return op()
}

// Upsert embeds the chunk contents as one batch and writes one point per
// chunk, keyed by chunk id.
func (ix *Index) Upsert(ctx context.Context, chunks []core.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if err := core.ValidateChunk(&chunks[i]); err != nil {
			return err
		}
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return &ai.EmbeddingError{
			Backend: "index",
			Message: fmt.Sprintf("expected %d embeddings, received %d", len(chunks), len(vectors)),
		}
	}

	points := make([]Point, len(chunks))
	for i, chunk := range chunks {
		if len(vectors[i]) != ix.vectorSize {
			return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
				ErrDimensionMismatch, chunk.ID, len(vectors[i]), ix.vectorSize)
		}
		points[i] = Point{
			ID:     chunk.ID,
			Vector: vectors[i],
			Payload: Payload{
				Text:       chunk.Content,
				DocumentID: chunk.DocumentID,
				CategoryID: chunk.CategoryID,
				Title:      chunk.Title,
			},
		}
	}

	err = ix.withCollection(ctx, func() error {
		return ix.store.UpsertPoints(ctx, points)
	})
	if err != nil {
		return wrapIndexErr("upserting points", err)
	}

	ix.logger.Debug("upserted chunks", "count", len(points), "document", chunks[0].DocumentID)
	return nil
}

// DeleteDocument removes every chunk of a document from the index.
func (ix *Index) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return core.ErrEmptyID
	}
	err := ix.withCollection(ctx, func() error {
		return ix.store.DeleteDocument(ctx, documentID)
	})
	if err != nil {
		return wrapIndexErr("deleting document points", err)
	}
	return nil
}

// Search returns up to limit chunks nearest to vector, ordered by
// descending score. A limit below 1 returns no results.
func (ix *Index) Search(ctx context.Context, vector []float32, limit int) ([]core.RetrievedChunk, error) {
	if limit < 1 {
		return nil, nil
	}
	if len(vector) != ix.vectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vector), ix.vectorSize)
	}

	var hits []ScoredPoint
	err := ix.withCollection(ctx, func() error {
		var err error
		hits, err = ix.store.Search(ctx, vector, limit)
		return err
	})
	if err != nil {
		return nil, wrapIndexErr("searching", err)
	}

	results := make([]core.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		results = append(results, core.RetrievedChunk{
			TextChunk: core.TextChunk{
				ID:         hit.ID,
				Content:    hit.Payload.Text,
				DocumentID: hit.Payload.DocumentID,
				CategoryID: hit.Payload.CategoryID,
				Title:      hit.Payload.Title,
			},
			Score: hit.Score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// SearchText embeds query and searches with the resulting vector.
func (ix *Index) SearchText(ctx context.Context, query string, limit int) ([]core.RetrievedChunk, error) {
	if limit < 1 {
		return nil, nil
	}

	vector, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	return ix.Search(ctx, vector, limit)
}

func wrapIndexErr(op string, err error) error {
	if errors.Is(err, core.ErrIndex) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", core.ErrIndex, op, err)
}
