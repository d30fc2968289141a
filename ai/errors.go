package ai

import (
	"fmt"

	"github.com/poiesic/ragsync/core"
)

// EmbeddingError reports a failed or malformed response from an embedding backend.
// StatusCode is zero when the failure was not an HTTP status, such as a
// transport error or an unusable response body.
type EmbeddingError struct {
	Backend    string
	StatusCode int
	Message    string
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding backend %s returned %d: %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("embedding backend %s: %s", e.Backend, e.Message)
}

// Is makes EmbeddingError match core.ErrEmbeddingBackend.
func (e *EmbeddingError) Is(target error) bool {
	return target == core.ErrEmbeddingBackend
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
