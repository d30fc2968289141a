package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragsync/ai"
	"github.com/poiesic/ragsync/ai/mock"
	"github.com/poiesic/ragsync/core"
)

const testDims = 8

// fakeStore is an in-memory Store with brute-force cosine search.
type fakeStore struct {
	mu          sync.Mutex
	points      map[string]Point
	ensureCalls int
	ensureErr   error
	upsertErr   error
	searchErr   error
	// dropped simulates the collection being deleted behind the index.
	dropped bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[string]Point)}
}

func (f *fakeStore) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureCalls++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.dropped = false
	return nil
}

func (f *fakeStore) UpsertPoints(ctx context.Context, points []Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.dropped {
		return fmt.Errorf("upserting: %w", ErrCollectionNotFound)
	}
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, p := range f.points {
		if p.Payload.DocumentID == documentID {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, limit int) ([]ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.dropped {
		return nil, fmt.Errorf("searching: %w", ErrCollectionNotFound)
	}
	query := NormalizeVector(vector)
	hits := make([]ScoredPoint, 0, len(f.points))
	for _, p := range f.points {
		// Return hits unsorted so the index has to order them.
		hits = append(hits, ScoredPoint{Point: p, Score: Dot(query, NormalizeVector(p.Vector))})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	return hits, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

func testChunk(docID, content string) core.TextChunk {
	return core.TextChunk{
		ID:         uuid.NewString(),
		Content:    content,
		DocumentID: docID,
		CategoryID: "cat-1",
		Title:      "Doc " + docID,
	}
}

func newTestIndex(t *testing.T, store Store) (*Index, *mock.MockEmbedder) {
	t.Helper()
	embedder := mock.NewMockEmbedderWithDimensions(testDims)
	ix, err := NewIndex(store, embedder, WithVectorSize(testDims))
	require.NoError(t, err)
	return ix, embedder
}

func TestNewIndex_Validation(t *testing.T) {
	_, err := NewIndex(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewIndex(newFakeStore(), nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewIndex(newFakeStore(), mock.NewMockEmbedderWithDimensions(4))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, core.ErrIndex)

	_, err = NewIndex(newFakeStore(), mock.NewMockEmbedder(), WithVectorSize(0))
	assert.Error(t, err)

	ix, err := NewIndex(newFakeStore(), mock.NewMockEmbedder())
	require.NoError(t, err)
	assert.Equal(t, DefaultVectorSize, ix.VectorSize())
}

func TestIndex_UpsertAndSearch(t *testing.T) {
	store := newFakeStore()
	ix, embedder := newTestIndex(t, store)
	ctx := context.Background()

	chunks := []core.TextChunk{
		testChunk("doc-1", "alpha"),
		testChunk("doc-1", "beta"),
		testChunk("doc-2", "gamma"),
	}
	require.NoError(t, ix.Upsert(ctx, chunks))
	assert.Equal(t, 3, store.count())
	assert.Equal(t, 1, embedder.CallCount(), "chunks should be embedded as one batch")

	results, err := ix.Search(ctx, mock.Vector("beta", testDims), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "beta", results[0].Content)
	assert.Equal(t, chunks[1].ID, results[0].ID)
	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, "cat-1", results[0].CategoryID)
	assert.Equal(t, "Doc doc-1", results[0].Title)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestIndex_UpsertReplacesByID(t *testing.T) {
	store := newFakeStore()
	ix, _ := newTestIndex(t, store)
	ctx := context.Background()

	chunk := testChunk("doc-1", "first")
	require.NoError(t, ix.Upsert(ctx, []core.TextChunk{chunk}))

	chunk.Content = "second"
	require.NoError(t, ix.Upsert(ctx, []core.TextChunk{chunk}))

	assert.Equal(t, 1, store.count())
	results, err := ix.SearchText(ctx, "second", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second", results[0].Content)
}

func TestIndex_UpsertEmpty(t *testing.T) {
	store := newFakeStore()
	ix, embedder := newTestIndex(t, store)

	require.NoError(t, ix.Upsert(context.Background(), nil))
	assert.Equal(t, 0, embedder.CallCount())
	assert.Equal(t, 0, store.ensureCalls)
}

func TestIndex_UpsertInvalidChunk(t *testing.T) {
	ix, embedder := newTestIndex(t, newFakeStore())

	bad := testChunk("doc-1", "x")
	bad.ID = "not-a-uuid"
	err := ix.Upsert(context.Background(), []core.TextChunk{bad})
	assert.ErrorIs(t, err, core.ErrInvalidChunk)
	assert.Equal(t, 0, embedder.CallCount())
}

func TestIndex_UpsertEmbeddingFailure(t *testing.T) {
	store := newFakeStore()
	ix, embedder := newTestIndex(t, store)
	embedder.WithEmbedDocumentsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, &ai.EmbeddingError{Backend: "mock", StatusCode: 503, Message: "busy"}
	})

	err := ix.Upsert(context.Background(), []core.TextChunk{testChunk("doc-1", "x")})
	assert.ErrorIs(t, err, core.ErrEmbeddingBackend)
	assert.Equal(t, 0, store.count())
}

func TestIndex_UpsertWrongDimensions(t *testing.T) {
	store := newFakeStore()
	ix, embedder := newTestIndex(t, store)
	embedder.WithEmbedDocumentsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 2, 3}}, nil
	})

	err := ix.Upsert(context.Background(), []core.TextChunk{testChunk("doc-1", "x")})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, store.count())
}

func TestIndex_UpsertCountMismatch(t *testing.T) {
	ix, embedder := newTestIndex(t, newFakeStore())
	embedder.WithEmbedDocumentsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, nil
	})

	err := ix.Upsert(context.Background(), []core.TextChunk{testChunk("doc-1", "x")})
	assert.ErrorIs(t, err, core.ErrEmbeddingBackend)
}

func TestIndex_StoreErrorsWrapIndexError(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = errors.New("connection refused")
	ix, _ := newTestIndex(t, store)

	err := ix.Upsert(context.Background(), []core.TextChunk{testChunk("doc-1", "x")})
	assert.ErrorIs(t, err, core.ErrIndex)

	store.searchErr = errors.New("timeout")
	_, err = ix.SearchText(context.Background(), "x", 3)
	assert.ErrorIs(t, err, core.ErrIndex)
}

func TestIndex_EnsureCachedOnSuccess(t *testing.T) {
	store := newFakeStore()
	store.ensureErr = errors.New("unavailable")
	ix, _ := newTestIndex(t, store)
	ctx := context.Background()

	_, err := ix.SearchText(ctx, "x", 3)
	assert.ErrorIs(t, err, core.ErrIndex)

	store.mu.Lock()
	store.ensureErr = nil
	store.mu.Unlock()

	_, err = ix.SearchText(ctx, "x", 3)
	require.NoError(t, err)
	_, err = ix.SearchText(ctx, "y", 3)
	require.NoError(t, err)

	assert.Equal(t, 2, store.ensureCalls, "failed ensure retried, successful ensure cached")
}

func TestIndex_RecreatesDroppedCollection(t *testing.T) {
	store := newFakeStore()
	ix, _ := newTestIndex(t, store)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, []core.TextChunk{testChunk("doc-1", "a")}))
	assert.Equal(t, 1, store.ensureCalls)

	store.mu.Lock()
	store.dropped = true
	store.points = make(map[string]Point)
	store.mu.Unlock()

	require.NoError(t, ix.Upsert(ctx, []core.TextChunk{testChunk("doc-2", "b")}))
	assert.Equal(t, 2, store.ensureCalls)
	assert.Equal(t, 1, store.count())

	store.mu.Lock()
	store.dropped = true
	store.mu.Unlock()

	results, err := ix.SearchText(ctx, "b", 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 3, store.ensureCalls)
}

func TestIndex_DroppedCollectionRecreateFails(t *testing.T) {
	store := newFakeStore()
	ix, _ := newTestIndex(t, store)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, []core.TextChunk{testChunk("doc-1", "a")}))

	store.mu.Lock()
	store.dropped = true
	store.ensureErr = errors.New("unavailable")
	store.mu.Unlock()

	_, err := ix.SearchText(ctx, "a", 3)
	assert.ErrorIs(t, err, core.ErrIndex)

	store.mu.Lock()
	store.ensureErr = nil
	store.mu.Unlock()

	_, err = ix.SearchText(ctx, "a", 3)
	require.NoError(t, err)
}

func TestIndex_SearchLimit(t *testing.T) {
	store := newFakeStore()
	ix, embedder := newTestIndex(t, store)
	ctx := context.Background()

	results, err := ix.SearchText(ctx, "anything", 0)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 0, embedder.CallCount())

	require.NoError(t, ix.Upsert(ctx, []core.TextChunk{
		testChunk("d", "a"), testChunk("d", "b"), testChunk("d", "c"),
	}))
	results, err = ix.SearchText(ctx, "a", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestIndex_SearchWrongDimensions(t *testing.T) {
	ix, _ := newTestIndex(t, newFakeStore())
	_, err := ix.Search(context.Background(), []float32{1, 2}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIndex_DeleteDocument(t *testing.T) {
	store := newFakeStore()
	ix, _ := newTestIndex(t, store)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, []core.TextChunk{
		testChunk("doc-1", "a"), testChunk("doc-1", "b"), testChunk("doc-2", "c"),
	}))
	require.NoError(t, ix.DeleteDocument(ctx, "doc-1"))
	assert.Equal(t, 1, store.count())

	assert.ErrorIs(t, ix.DeleteDocument(ctx, ""), core.ErrEmptyID)
}
