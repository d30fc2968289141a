// Package mock provides a test double for ai.Embedder.
//
// The mock lets tests run without an embedding service and gives controlled,
// deterministic behavior.
//
// # Usage in Tests
//
//	// Default behavior: deterministic unit vectors derived from the text hash
//	embedder := mock.NewMockEmbedder()
//	vectors, err := embedder.EmbedDocuments(ctx, []string{"a", "b"})
//
//	// Custom behavior injection
//	embedder := mock.NewMockEmbedderWithDimensions(4).
//	    WithEmbedDocumentsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
//	        return nil, &ai.EmbeddingError{Backend: "mock", StatusCode: 503, Message: "busy"}
//	    })
//
//	// Check call counts
//	count := embedder.CallCount()
package mock
