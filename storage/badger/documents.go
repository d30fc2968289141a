package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) storage.DocumentRepository {
	return newDocumentRepository(backend)
}

func newDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close is a no-op; the backend is owned by the caller.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// FindExistingUpdatedAt returns sourceID -> UpdatedAt for a source type.
func (r *DocumentRepository) FindExistingUpdatedAt(ctx context.Context, sourceType string) (map[string]int64, error) {
	if err := validateSourceType(sourceType); err != nil {
		return nil, err
	}

	known := make(map[string]int64)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return forEachPrefix(ctx, tx, makeDocumentTypePrefix(sourceType), func(_, val []byte) error {
			doc, err := storage.UnmarshalIngestedDocument(val)
			if err != nil {
				return err
			}
			known[doc.SourceID] = doc.UpdatedAt
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return known, nil
}

// RecordIngested stores doc unless a newer version is already recorded.
func (r *DocumentRepository) RecordIngested(ctx context.Context, doc *storage.IngestedDocument) (bool, error) {
	if doc == nil || doc.SourceID == "" {
		return false, core.ErrEmptyID
	}
	if err := validateSourceType(doc.SourceType); err != nil {
		return false, err
	}

	recorded := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.SourceType, doc.SourceID)

		existing, err := getValue(tx, key, storage.UnmarshalIngestedDocument)
		if err != nil {
			return err
		}
		if existing != nil && existing.UpdatedAt > doc.UpdatedAt {
			return nil
		}

		if doc.IngestedAt.IsZero() {
			doc.IngestedAt = time.Now().UTC()
		}
		if err := tx.Set(key, storage.MarshalIngestedDocument(doc)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		recorded = true
		return nil
	}, true)

	return recorded, err
}

// GetDocument retrieves one document.
func (r *DocumentRepository) GetDocument(ctx context.Context, sourceType, sourceID string) (*storage.IngestedDocument, error) {
	if err := validateSourceType(sourceType); err != nil {
		return nil, err
	}

	var doc *storage.IngestedDocument
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		doc, err = getValue(tx, makeDocumentKey(sourceType, sourceID), storage.UnmarshalIngestedDocument)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s/%s: %w", sourceType, sourceID, storage.ErrNotFound)
	}
	return doc, nil
}

// ForEachDocument iterates documents of a source type in key order.
func (r *DocumentRepository) ForEachDocument(ctx context.Context, sourceType string, fn func(*storage.IngestedDocument) error) error {
	if err := validateSourceType(sourceType); err != nil {
		return err
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		return forEachPrefix(ctx, tx, makeDocumentTypePrefix(sourceType), func(_, val []byte) error {
			doc, err := storage.UnmarshalIngestedDocument(val)
			if err != nil {
				return err
			}
			return fn(doc)
		})
	}, false)
}

// CountDocuments counts documents of a source type without decoding them.
func (r *DocumentRepository) CountDocuments(ctx context.Context, sourceType string) (int, error) {
	if err := validateSourceType(sourceType); err != nil {
		return 0, err
	}

	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentTypePrefix(sourceType)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return ctx.Err()
	}, false)
	return count, err
}
