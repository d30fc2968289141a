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


// Package storage provides the storage abstraction layer for ragsync.
//
// This package defines the repositories the sync pipeline writes to: the
// document store that remembers which catalog items were ingested and at
// which update timestamp, the sync job store, and checkpoints for resumable
// batch work. Backends live in subpackages.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return these interfaces:
//
//	docs, err := badger.NewDocumentRepository(backend)  // storage.DocumentRepository
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	stores, err := badger.NewMemoryStores()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stores.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Serialization
//
// Records are encoded with MUS (github.com/mus-format/mus-go) in
// serialization.go.
package storage
