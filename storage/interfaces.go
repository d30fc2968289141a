package storage

import (
	"context"

	"github.com/poiesic/ragsync/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository records which catalog items have been ingested.
type DocumentRepository interface {
	Repository

	// FindExistingUpdatedAt returns the stored update timestamp of every
	// document of a source type, keyed by source id.
	FindExistingUpdatedAt(ctx context.Context, sourceType string) (map[string]int64, error)

	// RecordIngested stores doc, replacing any previous record with the same
	// source type and id. Sets IngestedAt if not already set.
	// Returns false without writing when the stored record is newer than doc.
	RecordIngested(ctx context.Context, doc *IngestedDocument) (bool, error)

	// GetDocument retrieves one document.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, sourceType, sourceID string) (*IngestedDocument, error)

	// ForEachDocument calls fn for every document of a source type in key
	// order. Iteration stops at the first error from fn.
	ForEachDocument(ctx context.Context, sourceType string, fn func(*IngestedDocument) error) error

	// CountDocuments returns the number of documents of a source type.
	CountDocuments(ctx context.Context, sourceType string) (int, error)
}

// JobRepository persists sync jobs.
type JobRepository interface {
	Repository

	// CreateJob stores a new job. For jobs with Id=0, generates a new ID
	// from a sequence. Sets UpdatedAt.
	CreateJob(ctx context.Context, job *core.SyncJob) (*core.SyncJob, error)

	// UpdateJob replaces an existing job. Sets UpdatedAt.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.SyncJob) error

	// GetJob retrieves a job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id core.ID) (*core.SyncJob, error)

	// ListJobs returns up to limit jobs, most recent first.
	ListJobs(ctx context.Context, limit int) ([]*core.SyncJob, error)

	// ActiveJob returns the pending or running job, or nil if there is none.
	ActiveJob(ctx context.Context) (*core.SyncJob, error)
}

// CheckpointRepository persists progress markers for resumable batch work.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint. Sets UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for a processor type.
	DeleteCheckpoint(ctx context.Context, processorType string) error
}
