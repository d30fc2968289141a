package reindex

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/ragsync/chunker"
	"github.com/poiesic/ragsync/ingestion"
	"github.com/poiesic/ragsync/storage"
)

// BatchProcessor re-chunks and re-embeds batches of stored documents.
type BatchProcessor struct {
	index          ingestion.ChunkWriter
	chunker        *chunker.Chunker
	categoryID     string
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts per document
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(index ingestion.ChunkWriter, c *chunker.Chunker, categoryID string, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		index:          index,
		chunker:        c,
		categoryID:     categoryID,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process replaces the indexed chunks of every document in the batch.
// The first document that still fails after retries aborts the batch.
func (bp *BatchProcessor) Process(ctx context.Context, docs []*storage.IngestedDocument) error {
	for _, doc := range docs {
		err := RetryWithBackoff(ctx, func() error {
			return ingestion.IndexDocument(ctx, bp.index, bp.chunker, doc.SourceID, bp.categoryID, doc.Title, doc.Content)
		}, bp.maxRetries, bp.retryBaseDelay)
		if err != nil {
			return fmt.Errorf("reindexing document %s after %d attempts: %w", doc.SourceID, bp.maxRetries, err)
		}
	}
	return nil
}
