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


// Package openai implements ai.Embedder for OpenAI-compatible embedding APIs.
//
// Every built-in backend (OpenAI, SiliconFlow, DashScope compatible mode,
// Ollama) accepts the same request:
//
//	POST {base}/embeddings
//	{"model": "...", "input": ["..."], "dimensions": 1024, "encoding_format": "float"}
//
// and answers with {"data": [{"index": 0, "embedding": [...]}]}. Results are
// reordered by index. Batching is handled by langchaingo's embeddings
// package on top of the package's HTTP client.
//
// # Usage
//
//	config := ai.NewConfig(ai.WithBackend("dashscope"), ai.WithAPIKey(key))
//	embedder, err := openai.NewEmbedder(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	vectors, err := embedder.EmbedDocuments(ctx, chunks)
package openai
