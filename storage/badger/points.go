package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/ragsync/storage"
	"github.com/poiesic/ragsync/vectorstore"
)

// PointStore implements vectorstore.Store on BadgerDB with brute-force
// cosine search. Vectors are normalized on write so similarity is a dot
// product. It suits single-process deployments and tests; use the Qdrant
// store for large collections.
type PointStore struct {
	backend *Backend
}

var _ vectorstore.Store = (*PointStore)(nil)

// NewPointStore creates a new PointStore.
func NewPointStore(backend *Backend) *PointStore {
	return &PointStore{backend: backend}
}

// EnsureCollection records the vector size on first use. A later call with
// a different size fails, since stored vectors could not be compared.
func (s *PointStore) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readPointSize(tx)
		if err != nil {
			return err
		}
		if current != 0 {
			if current != vectorSize {
				return fmt.Errorf("%w: collection has size %d, requested %d",
					vectorstore.ErrDimensionMismatch, current, vectorSize)
			}
			return nil
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, vectorSize)
		if err := tx.Set([]byte(pointSizeKey), buf); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// UpsertPoints inserts or replaces points and keeps the document index
// in step when a point moves between documents.
func (s *PointStore) UpsertPoints(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		size, err := readPointSize(tx)
		if err != nil {
			return err
		}

		for i := range points {
			p := points[i]
			if size != 0 && uint64(len(p.Vector)) != size {
				return fmt.Errorf("%w: point %s has %d dimensions, collection has %d",
					vectorstore.ErrDimensionMismatch, p.ID, len(p.Vector), size)
			}

			key := makePointKey(p.ID)
			old, err := getValue(tx, key, storage.UnmarshalPoint)
			if err != nil {
				return err
			}
			if old != nil && old.Payload.DocumentID != p.Payload.DocumentID {
				if err := tx.Delete(makePointDocKey(old.Payload.DocumentID, old.ID)); err != nil {
					return err
				}
			}

			p.Vector = vectorstore.NormalizeVector(p.Vector)
			if err := tx.Set(key, storage.MarshalPoint(&p)); err != nil {
				return err
			}
			if err := tx.Set(makePointDocKey(p.Payload.DocumentID, p.ID), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeleteDocument removes every point indexed under documentID.
func (s *PointStore) DeleteDocument(ctx context.Context, documentID string) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialPointDocKey(documentID)

		var indexKeys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			indexKeys = append(indexKeys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, indexKey := range indexKeys {
			pointID := string(indexKey[len(prefix):])
			if err := tx.Delete(makePointKey(pointID)); err != nil {
				return err
			}
			if err := tx.Delete(indexKey); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Search scans every point and returns the limit best by cosine similarity.
func (s *PointStore) Search(ctx context.Context, vector []float32, limit int) ([]vectorstore.ScoredPoint, error) {
	if limit < 1 {
		return nil, nil
	}
	query := vectorstore.NormalizeVector(vector)

	var results []vectorstore.ScoredPoint
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		return forEachPrefix(ctx, tx, []byte(pointPrefix+":"), func(_, val []byte) error {
			p, err := storage.UnmarshalPoint(val)
			if err != nil {
				return err
			}
			if len(p.Vector) != len(query) {
				return nil
			}
			results = append(results, vectorstore.ScoredPoint{
				Point: *p,
				Score: vectorstore.Dot(query, p.Vector),
			})
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortStableFunc(results, func(a, b vectorstore.ScoredPoint) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of stored points.
func (s *PointStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pointPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

func readPointSize(tx *badger.Txn) (uint64, error) {
	item, err := tx.Get([]byte(pointSizeKey))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	var size uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return storage.ErrTruncatedData
		}
		size = binary.BigEndian.Uint64(val)
		return nil
	})
	return size, err
}
