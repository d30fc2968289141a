package retrieval

import "errors"

var (
	// ErrSearcherRequired is returned when a searcher is not provided.
	ErrSearcherRequired = errors.New("searcher required")
)
