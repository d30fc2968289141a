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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/poiesic/ragsync/catalog"
	"github.com/poiesic/ragsync/chunker"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/delta"
	"github.com/poiesic/ragsync/storage"
)

// CatalogSource is the remote catalog. *catalog.Client implements it.
type CatalogSource interface {
	FetchCatalog(ctx context.Context, rootID string) ([]core.CatalogItem, error)
	FetchItem(ctx context.Context, id string) (*catalog.Item, error)
	ItemURL(id string) string
}

// ChunkWriter is the write side of the vector index. *vectorstore.Index
// implements it.
type ChunkWriter interface {
	Upsert(ctx context.Context, chunks []core.TextChunk) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// Outcome describes how an item was handled.
type Outcome int

const (
	// OutcomeIngested means the item was chunked, embedded and recorded.
	OutcomeIngested Outcome = iota
	// OutcomeUnchanged means the converted text matched the stored copy,
	// so only the new timestamp was recorded.
	OutcomeUnchanged
)

// processor runs the per-item unit of work.
type processor interface {
	// process ingests one catalog item.
	process(ctx context.Context, item core.CatalogItem, mode core.SyncMode) (Outcome, error)
}

// itemProcessor fetches, converts, chunks, indexes and records one item.
type itemProcessor struct {
	source     CatalogSource
	index      ChunkWriter
	documents  storage.DocumentRepository
	chunker    *chunker.Chunker
	sourceType string
	categoryID string
	logger     *slog.Logger
}

var _ processor = (*itemProcessor)(nil)

func (p *itemProcessor) process(ctx context.Context, item core.CatalogItem, mode core.SyncMode) (Outcome, error) {
	fetched, err := p.source.FetchItem(ctx, item.ID)
	if err != nil {
		return 0, fmt.Errorf("fetching item %s: %w", item.ID, err)
	}

	text, err := delta.Convert(fetched.Content)
	if err != nil {
		return 0, fmt.Errorf("converting item %s: %w", item.ID, err)
	}

	title := fetched.Title
	if title == "" {
		title = item.Title
	}
	updatedAt := item.UpdatedAt
	if updatedAt == 0 {
		updatedAt = fetched.UpdatedAt
	}
	hash := core.IDFromContent(text)

	doc := &storage.IngestedDocument{
		SourceID:    item.ID,
		SourceType:  p.sourceType,
		Title:       title,
		Path:        item.PathSegments,
		SourceURL:   p.source.ItemURL(item.ID),
		UpdatedAt:   updatedAt,
		Content:     text,
		ContentHash: hash,
	}

	if mode == core.SyncModeIncremental {
		unchanged, err := p.unchanged(ctx, item.ID, hash)
		if err != nil {
			return 0, err
		}
		if unchanged {
			p.logger.Debug("content unchanged, skipping embedding", "item", item.ID)
			return OutcomeUnchanged, p.record(ctx, doc)
		}
	}

	if err := IndexDocument(ctx, p.index, p.chunker, item.ID, p.categoryID, title, text); err != nil {
		return 0, fmt.Errorf("indexing item %s: %w", item.ID, err)
	}

	return OutcomeIngested, p.record(ctx, doc)
}

// unchanged reports whether the stored copy of id has the same content hash.
func (p *itemProcessor) unchanged(ctx context.Context, id string, hash core.ID) (bool, error) {
	existing, err := p.documents.GetDocument(ctx, p.sourceType, id)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading stored item %s: %w", id, err)
	}
	return existing.ContentHash == hash, nil
}

func (p *itemProcessor) record(ctx context.Context, doc *storage.IngestedDocument) error {
	ok, err := p.documents.RecordIngested(ctx, doc)
	if err != nil {
		return fmt.Errorf("%w: item %s: %w", core.ErrRecordRejected, doc.SourceID, err)
	}
	if !ok {
		return fmt.Errorf("%w: item %s at %d", core.ErrRecordRejected, doc.SourceID, doc.UpdatedAt)
	}
	return nil
}

// IndexDocument replaces every chunk of a document in the index: existing
// points for documentID are deleted, then text is split and upserted as one
// batch under fresh chunk ids. Empty text leaves the document with no chunks.
func IndexDocument(ctx context.Context, index ChunkWriter, c *chunker.Chunker, documentID, categoryID, title, text string) error {
	if err := index.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	pieces := c.Split(text)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]core.TextChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = core.TextChunk{
			ID:         uuid.NewString(),
			Content:    piece,
			DocumentID: documentID,
			CategoryID: categoryID,
			Title:      title,
		}
	}
	return index.Upsert(ctx, chunks)
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
