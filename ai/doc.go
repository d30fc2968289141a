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


// Package ai provides the embedding abstraction used by ragsync.
//
// The Embedder interface has two operations, EmbedDocuments for batches and
// EmbedQuery for a single question, plus Dimensions. Embedding services are
// not modelled as types: every supported service speaks the same
// OpenAI-compatible request/response contract and differs only in base URL,
// model name and vector size, so each one is a Backend preset selected by
// name through Config.
//
// # Implementation Packages
//
//   - ai/openai: HTTP implementation for any OpenAI-compatible backend
//   - ai/mock: Test double with deterministic vectors
//
// Public constructors in ai/openai return the ai.Embedder interface. The
// mock constructor returns its concrete type so tests can inject behavior and
// assert call counts.
//
// # Errors
//
// A non-2xx or malformed backend response surfaces as *EmbeddingError,
// which matches core.ErrEmbeddingBackend under errors.Is.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithBackend("siliconflow"), ai.WithAPIKey(key))
//	embedder, err := openai.NewEmbedder(cfg)
//	if err != nil {
//	    return err
//	}
//	vector, err := embedder.EmbedQuery(ctx, "how do I reset my password")
package ai
