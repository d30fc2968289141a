package ingestion

import "errors"

var (
	// ErrSourceRequired is returned when a catalog source is not provided.
	ErrSourceRequired = errors.New("catalog source required")

	// ErrIndexRequired is returned when a chunk writer is not provided.
	ErrIndexRequired = errors.New("chunk index required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrSchedulerRequired is returned when a scheduler is not provided.
	ErrSchedulerRequired = errors.New("scheduler required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrRootIDRequired is returned when no catalog root id is configured.
	ErrRootIDRequired = errors.New("catalog root id required")

	// ErrUnresolvedItems is reported when a run ends with items still failing.
	ErrUnresolvedItems = errors.New("unresolved items after final round")
)
