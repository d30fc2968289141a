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
	"errors"

	"github.com/poiesic/ragsync/storage"
)

const (
	// DefaultBatchSize is the default number of documents handed to each batch
	DefaultBatchSize = 20
)

// errStop ends ForEachDocument early without surfacing as a failure.
var errStop = errors.New("stop iteration")

// DocumentIterator walks the stored documents of one source type in key
// order, in batches.
type DocumentIterator struct {
	documents  storage.DocumentRepository
	sourceType string
	batchSize  int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch; non-positive selects DefaultBatchSize
func NewDocumentIterator(documents storage.DocumentRepository, sourceType string, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		documents:  documents,
		sourceType: sourceType,
		batchSize:  batchSize,
	}
}

// ForEach calls fn with consecutive batches of documents whose source id
// sorts after the given key. An empty key starts at the beginning.
// Iteration stops on the first error from fn. Context cancellation is
// checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, after string, fn func([]*storage.IngestedDocument) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		batch []*storage.IngestedDocument
		fnErr error
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			fnErr = err
			return errStop
		}
		batch = nil
		if err := ctx.Err(); err != nil {
			fnErr = err
			return errStop
		}
		return nil
	}

	err := it.documents.ForEachDocument(ctx, it.sourceType, func(doc *storage.IngestedDocument) error {
		if after != "" && doc.SourceID <= after {
			return nil
		}
		batch = append(batch, doc)
		if len(batch) < it.batchSize {
			return nil
		}
		return flush()
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return err
	}

	if err := flush(); err != nil {
		return fnErr
	}
	return nil
}
