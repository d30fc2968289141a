// Package vectorstore maintains the chunk vector index.
//
// An Index embeds chunk contents through an ai.Embedder and writes one point
// per chunk to a Store. Stores are pluggable: vectorstore/qdrant talks to a
// Qdrant server over gRPC, and storage/badger keeps points in a local
// Badger database for single-process deployments and tests.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/poiesic/ragsync/core"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// configured vector size.
var ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", core.ErrIndex)

// ErrCollectionNotFound is returned by a Store when the collection no longer
// exists, for example after it was dropped by an operator.
var ErrCollectionNotFound = fmt.Errorf("%w: collection not found", core.ErrIndex)

// Payload is the metadata stored with each point.
type Payload struct {
	Text       string
	DocumentID string
	CategoryID string
	Title      string
}

// Point is a vector keyed by chunk id.
type Point struct {
	ID      string // UUID
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	Point
	Score float32
}

// Store persists points and answers cosine nearest-neighbour queries.
// Implementations must be safe for concurrent use. Writes and searches
// against a missing collection fail with ErrCollectionNotFound.
type Store interface {
	// EnsureCollection creates the collection with the given vector size and
	// cosine distance if it does not exist. It is idempotent.
	EnsureCollection(ctx context.Context, vectorSize uint64) error

	// UpsertPoints inserts or replaces points by id.
	UpsertPoints(ctx context.Context, points []Point) error

	// DeleteDocument removes every point whose payload belongs to documentID.
	DeleteDocument(ctx context.Context, documentID string) error

	// Search returns up to limit points ordered by descending cosine similarity.
	Search(ctx context.Context, vector []float32, limit int) ([]ScoredPoint, error)
}
