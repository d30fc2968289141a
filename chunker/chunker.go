// Package chunker splits text into bounded, overlapping chunks.
//
// Sizes and overlaps are measured in characters (runes). Each cut is placed
// at the best separator found in the back half of the window, preferring
// paragraph breaks, then line breaks, then sentence ends, then spaces, and
// falling back to a hard cut at the window edge.
//
// Consecutive chunks share exactly Overlap characters, so the input is
// rebuilt by chunks[0] + chunks[1][overlap:] + chunks[2][overlap:] + ...
// (offsets in runes).
package chunker

import "errors"

const (
	// DefaultChunkSize is the default maximum chunk length in characters.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the default number of characters repeated between chunks.
	DefaultChunkOverlap = 100
)

var (
	// ErrInvalidSize is returned when the chunk size is less than 1.
	ErrInvalidSize = errors.New("chunk size must be at least 1")

	// ErrInvalidOverlap is returned when the overlap is negative or not smaller than the size.
	ErrInvalidOverlap = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)

// separators in order of preference. A cut is placed right after the separator.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune("。"), []rune("！"), []rune("？"), []rune("；"),
	[]rune(". "), []rune("! "), []rune("? "),
	[]rune(" "),
}

// Chunker splits text into chunks of at most Size characters.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker.
func New(size, overlap int) (*Chunker, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	if overlap < 0 || overlap >= size {
		return nil, ErrInvalidOverlap
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters shared by consecutive chunks.
func (c *Chunker) Overlap() int { return c.overlap }

// Split splits text into chunks. Empty text yields no chunks; any other text
// yields at least one.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := c.findCut(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - c.overlap
	}

	return chunks
}

// findCut returns the end (exclusive) of the chunk starting at start.
// The cut never lands before start+overlap+1, so every step advances.
func (c *Chunker) findCut(runes []rune, start, end int) int {
	minCut := start + max(c.overlap+1, c.size/2)

	for _, sep := range separators {
		for i := end - len(sep); i+len(sep) >= minCut && i >= start; i-- {
			if hasPrefixAt(runes, i, sep) {
				return i + len(sep)
			}
		}
	}
	return end
}

func hasPrefixAt(runes []rune, i int, sep []rune) bool {
	if i+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
