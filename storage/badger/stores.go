package badger

import (
	"errors"
	"log/slog"
)

// Stores bundles every repository sharing one Backend.
type Stores struct {
	Backend     *Backend
	Documents   *DocumentRepository
	Jobs        *JobRepository
	Checkpoints *CheckpointRepository
	Points      *PointStore
}

// OpenStores opens a backend and builds all repositories on it.
// Caller must call Close when done.
func OpenStores(filePath string, inMemory bool, logger *slog.Logger) (*Stores, error) {
	backend, err := OpenBackend(filePath, inMemory, logger)
	if err != nil {
		return nil, err
	}

	jobs, err := newJobRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Stores{
		Backend:     backend,
		Documents:   newDocumentRepository(backend),
		Jobs:        jobs,
		Checkpoints: NewCheckpointRepository(backend),
		Points:      NewPointStore(backend),
	}, nil
}

// Close releases the repositories, then the backend.
func (s *Stores) Close() error {
	return errors.Join(
		s.Jobs.Close(),
		s.Documents.Close(),
		s.Backend.Close(),
	)
}
