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

import "errors"

// Pipeline error taxonomy. Components wrap these so callers can classify
// failures with errors.Is.
var (
	// ErrTransientFetch indicates a network or HTTP failure talking to the remote catalog.
	ErrTransientFetch = errors.New("transient fetch error")

	// ErrParse indicates a malformed catalog payload, rich document or hyperlink attribute.
	ErrParse = errors.New("parse error")

	// ErrEmbeddingBackend indicates the embedding service rejected a request or answered garbage.
	ErrEmbeddingBackend = errors.New("embedding backend error")

	// ErrIndex indicates the vector index was unreachable or rejected an operation.
	ErrIndex = errors.New("vector index error")

	// ErrRecordRejected indicates the document store refused to record an ingested item.
	ErrRecordRejected = errors.New("document store rejected record")
)

// Domain validation errors
var (
	// ErrInvalidCatalogItem indicates a CatalogItem failed validation.
	ErrInvalidCatalogItem = errors.New("invalid catalog item")

	// ErrInvalidChunk indicates a TextChunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyID indicates an identifier field is empty.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrEmptyContent indicates the content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidTimestamp indicates a negative update timestamp.
	ErrInvalidTimestamp = errors.New("timestamp cannot be negative")

	// ErrInvalidSyncMode indicates an unknown sync mode.
	ErrInvalidSyncMode = errors.New("invalid sync mode")
)

// IsRetryable reports whether a per-item failure may succeed on a later round.
// Parse errors are not retryable because the payload will not change.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrParse)
}
