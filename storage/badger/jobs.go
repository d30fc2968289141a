package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
// At most one job is pending or running at a time; its ID is kept under a
// dedicated key so creation can enforce that inside one transaction.
type JobRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (storage.JobRepository, error) {
	return newJobRepository(backend)
}

func newJobRepository(backend *Backend) (*JobRepository, error) {
	idSeq, err := backend.GetSequence(jobIDSeq)
	if err != nil {
		return nil, err
	}

	return &JobRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *JobRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *JobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// CreateJob stores a new job. A non-terminal job fails with
// storage.ErrActiveJob while another job is pending or running.
func (r *JobRepository) CreateJob(ctx context.Context, job *core.SyncJob) (*core.SyncJob, error) {
	if err := core.ValidateSyncMode(job.Mode); err != nil {
		return nil, err
	}
	if job.Status == "" {
		job.Status = core.SyncStatusPending
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if !job.Status.Terminal() {
			active, err := r.readActive(tx)
			if err != nil {
				return err
			}
			if active != nil {
				return fmt.Errorf("%w: job %d is %s", storage.ErrActiveJob, active.Id, active.Status)
			}
		}

		if job.Id == 0 {
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				if nextID, err = r.idSeq.Next(); err != nil {
					return err
				}
			}
			job.Id = core.ID(nextID)
		} else {
			existing, err := getValue(tx, makeJobKey(job.Id), storage.UnmarshalSyncJob)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("job %d: %w", job.Id, storage.ErrDuplicateKey)
			}
		}

		job.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeJobKey(job.Id), storage.MarshalSyncJob(job)); err != nil {
			return err
		}
		if !job.Status.Terminal() {
			if err := tx.Set([]byte(jobActiveKey), storage.MarshalID(job.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJob replaces a stored job. Moving the active job to a terminal
// status releases the active slot.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.SyncJob) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)
		existing, err := getValue(tx, key, storage.UnmarshalSyncJob)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("job %d: %w", job.Id, storage.ErrNotFound)
		}

		job.UpdatedAt = time.Now().UTC()
		if err := tx.Set(key, storage.MarshalSyncJob(job)); err != nil {
			return err
		}

		if job.Status.Terminal() {
			activeID, err := getValue(tx, []byte(jobActiveKey), unmarshalIDPtr)
			if err != nil {
				return err
			}
			if activeID != nil && *activeID == job.Id {
				if err := tx.Delete([]byte(jobActiveKey)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)
}

// GetJob retrieves a job by ID.
func (r *JobRepository) GetJob(ctx context.Context, id core.ID) (*core.SyncJob, error) {
	var job *core.SyncJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = getValue(tx, makeJobKey(id), storage.UnmarshalSyncJob)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d: %w", id, storage.ErrNotFound)
	}
	return job, nil
}

// ListJobs returns up to limit jobs, newest (highest ID) first.
func (r *JobRepository) ListJobs(ctx context.Context, limit int) ([]*core.SyncJob, error) {
	var results []*core.SyncJob
	if limit <= 0 {
		return results, nil
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(jobRecordPrefix + ":")

		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the largest possible ID to start from the newest job
		startKey := append(makeJobKey(core.ID(^uint64(0))), 0xff)

		for iter.Seek(startKey); iter.Valid() && len(results) < limit; iter.Next() {
			var job *core.SyncJob
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				job, err = storage.UnmarshalSyncJob(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, job)
		}
		return nil
	}, false)

	return results, err
}

// ActiveJob returns the pending or running job, or nil.
func (r *JobRepository) ActiveJob(ctx context.Context) (*core.SyncJob, error) {
	var job *core.SyncJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		job, err = r.readActive(tx)
		return err
	}, false)
	return job, err
}

func (r *JobRepository) readActive(tx *badger.Txn) (*core.SyncJob, error) {
	activeID, err := getValue(tx, []byte(jobActiveKey), unmarshalIDPtr)
	if err != nil || activeID == nil {
		return nil, err
	}
	job, err := getValue(tx, makeJobKey(*activeID), storage.UnmarshalSyncJob)
	if err != nil {
		return nil, err
	}
	if job == nil || job.Status.Terminal() {
		return nil, nil
	}
	return job, nil
}

func unmarshalIDPtr(data []byte) (*core.ID, error) {
	id, err := storage.UnmarshalID(data)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
