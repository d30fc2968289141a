package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/poiesic/ragsync/ai"
)

// DefaultDimensions is the vector size of a mock embedder created by NewMockEmbedder.
const DefaultDimensions = ai.DefaultDimensions

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields and is safe for
// concurrent use.
type MockEmbedder struct {
	// EmbedDocumentsFunc is called by EmbedDocuments (and EmbedQuery) if set.
	// If nil, uses default deterministic behavior.
	EmbedDocumentsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	dims      int
	mu        sync.Mutex
	callCount int
	texts     []string
}

var _ ai.Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder producing DefaultDimensions vectors.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder() *MockEmbedder {
	return NewMockEmbedderWithDimensions(DefaultDimensions)
}

// NewMockEmbedderWithDimensions creates a mock embedder producing vectors of size dims.
func NewMockEmbedderWithDimensions(dims int) *MockEmbedder {
	return &MockEmbedder{dims: dims}
}

// WithEmbedDocumentsFunc sets custom batch behavior and returns the mock.
func (m *MockEmbedder) WithEmbedDocumentsFunc(fn func(ctx context.Context, texts []string) ([][]float32, error)) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedDocumentsFunc = fn
	return m
}

// EmbedDocuments generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.texts = append(m.texts, texts...)
	fn := m.EmbedDocumentsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = Vector(text, m.dims)
	}
	return embeddings, nil
}

// EmbedQuery returns the first vector of EmbedDocuments for text.
func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimensions returns the vector size.
func (m *MockEmbedder) Dimensions() int {
	return m.dims
}

// CallCount returns the number of times EmbedDocuments or EmbedQuery was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// EmbeddedTexts returns every text passed to the mock so far.
func (m *MockEmbedder) EmbeddedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Reset clears the call count, recorded texts and custom behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.texts = nil
	m.EmbedDocumentsFunc = nil
}

// Vector creates a deterministic unit vector from text.
// It uses an FNV hash so the same text always produces the same vector.
func Vector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}

	return vector
}
