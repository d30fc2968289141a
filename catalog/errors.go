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


package catalog

import (
	"errors"
	"fmt"

	"github.com/poiesic/ragsync/core"
)

var (
	// ErrBaseURLRequired is returned when the client is created without a base URL.
	ErrBaseURLRequired = errors.New("catalog base URL required")

	// ErrRootIDRequired is returned when FetchCatalog is called without a root id.
	ErrRootIDRequired = errors.New("catalog root id required")

	// ErrItemIDRequired is returned when FetchItem is called without an item id.
	ErrItemIDRequired = errors.New("item id required")

	// ErrInvalidPageSize is returned when the page size is less than 1.
	ErrInvalidPageSize = errors.New("page size must be at least 1")
)

// StatusError reports a non-2xx response from the catalog.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog request %s failed: %s", e.URL, e.Status)
}

// Is makes StatusError match core.ErrTransientFetch.
func (e *StatusError) Is(target error) bool {
	return target == core.ErrTransientFetch
}
