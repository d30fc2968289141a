// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/ragsync/chunker"
	"github.com/poiesic/ragsync/ingestion"
	"github.com/poiesic/ragsync/storage"
)

// Config holds configuration for a reindex run.
type Config struct {
	// SourceType selects which stored documents are reindexed
	SourceType string

	// CategoryID is stored on every rebuilt chunk
	CategoryID string

	// BatchSize is the number of documents between checkpoints
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per document
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Resume continues from the last saved checkpoint instead of starting over
	Resume bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SourceType:     ingestion.DefaultSourceType,
		BatchSize:      DefaultBatchSize,
		ReportInterval: 10,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reindexer orchestrates rebuilding the vector index from stored documents.
type Reindexer struct {
	documents   storage.DocumentRepository
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *DocumentIterator
	logger      *slog.Logger
}

// NewReindexer creates a new reindexer.
// checkpoints may be nil, which disables checkpointing and resume.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(
	documents storage.DocumentRepository,
	checkpoints storage.CheckpointRepository,
	index ingestion.ChunkWriter,
	c *chunker.Chunker,
	config *Config,
	progress io.Writer,
) (*Reindexer, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if c == nil {
		return nil, ErrChunkerRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.SourceType == "" {
		config.SourceType = ingestion.DefaultSourceType
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		documents:   documents,
		checkpoints: checkpoints,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(index, c, config.CategoryID, config.MaxRetries, config.RetryDelay),
		iterator:    NewDocumentIterator(documents, config.SourceType, config.BatchSize),
		logger:      slog.Default().With("component", "reindexer", "sourceType", config.SourceType),
	}, nil
}

func (r *Reindexer) checkpointKey() string {
	return "reindex:" + r.config.SourceType
}

// Run rebuilds the index entries of every stored document and returns the
// number of documents processed in this run.
func (r *Reindexer) Run(ctx context.Context) (int, error) {
	total, err := r.documents.CountDocuments(ctx, r.config.SourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No documents found in database (0 documents)\n")
		return 0, nil
	}

	var after string
	done := 0
	if r.config.Resume && r.checkpoints != nil {
		checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, r.checkpointKey())
		if err != nil {
			return 0, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if checkpoint != nil {
			after = checkpoint.LastKey
			done = checkpoint.Processed
			fmt.Fprintf(r.progress, "Resuming after %s (%d documents already done)\n", after, done)
		}
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := ingestion.NewProgressTracker(r.progress, "documents", r.config.ReportInterval)
	tracker.Start(total)
	tracker.Update(done)

	processed := 0
	err = r.iterator.ForEach(ctx, after, func(docs []*storage.IngestedDocument) error {
		if err := r.processor.Process(ctx, docs); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		processed += len(docs)
		tracker.Update(done + processed)

		if r.checkpoints != nil {
			checkpoint := &storage.Checkpoint{
				ProcessorType: r.checkpointKey(),
				LastKey:       docs[len(docs)-1].SourceID,
				Processed:     done + processed,
			}
			if err := r.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("reindex stopped", "processed", processed, "err", err)
		return processed, err
	}

	tracker.Finish()

	if r.checkpoints != nil {
		if err := r.checkpoints.DeleteCheckpoint(ctx, r.checkpointKey()); err != nil {
			return processed, fmt.Errorf("failed to clear checkpoint: %w", err)
		}
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d documents in %v (%.1f documents/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/max(elapsed.Seconds(), 1e-9))

	return processed, nil
}
