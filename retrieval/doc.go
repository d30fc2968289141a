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


// Package retrieval assembles a bounded context string from the chunk index
// for downstream question answering.
//
// The Assembler searches for the k nearest chunks, drops those scoring below
// a threshold, removes exact-content duplicates keeping the best-ranked copy,
// and appends formatted entries until the next one would exceed the length
// budget. An empty result is not an error: it yields NoContext.
package retrieval
