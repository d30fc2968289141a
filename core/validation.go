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


package core

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidateCatalogItem validates a CatalogItem according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - UpdatedAt must not be negative
//
// NOT validated:
//   - Title (the source allows untitled items)
//   - PathSegments (root-level items have none)
func ValidateCatalogItem(item *CatalogItem) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidCatalogItem)
	}

	if item.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCatalogItem, ErrEmptyID)
	}

	if item.UpdatedAt < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCatalogItem, ErrInvalidTimestamp)
	}

	return nil
}

// ValidateChunk validates a TextChunk before it is written to the index.
//
// Validation rules:
//   - ID must be a UUID
//   - Content must not be empty
//   - DocumentID must not be empty
func ValidateChunk(chunk *TextChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if _, err := uuid.Parse(chunk.ID); err != nil {
		return fmt.Errorf("%w: id %q is not a uuid", ErrInvalidChunk, chunk.ID)
	}

	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if chunk.DocumentID == "" {
		return fmt.Errorf("%w: document %w", ErrInvalidChunk, ErrEmptyID)
	}

	return nil
}

// ValidateSyncMode validates that a SyncMode has a known value.
func ValidateSyncMode(mode SyncMode) error {
	if mode != SyncModeFull && mode != SyncModeIncremental {
		return fmt.Errorf("%w: %q", ErrInvalidSyncMode, mode)
	}
	return nil
}
