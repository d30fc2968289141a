package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragsync/core"
)

// NoContext is returned when no chunk survives filtering.
const NoContext = "未找到相关的知识库内容。"

// entrySeparator joins formatted entries; its length is charged per entry.
const entrySeparator = "\n\n"

// Defaults for Params.
const (
	DefaultK         = 5
	DefaultMinScore  = 0.5
	DefaultMaxLength = 4000
)

// Searcher finds the chunks nearest to a text query, ordered by descending
// score. *vectorstore.Index implements it.
type Searcher interface {
	SearchText(ctx context.Context, query string, limit int) ([]core.RetrievedChunk, error)
}

// Params bounds a context assembly.
type Params struct {
	K         int     // chunks to search for
	MinScore  float32 // chunks scoring below are dropped
	MaxLength int     // budget in characters; below 1 means unbounded
}

// DefaultParams returns Params with the package defaults.
func DefaultParams() Params {
	return Params{K: DefaultK, MinScore: DefaultMinScore, MaxLength: DefaultMaxLength}
}

// Assembler builds context strings from search results.
type Assembler struct {
	searcher Searcher
	logger   *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAssembler creates a new assembler.
func NewAssembler(searcher Searcher, opts ...Option) (*Assembler, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}

	a := &Assembler{
		searcher: searcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "context-assembler")

	return a, nil
}

// BuildContext returns the formatted context for query, or NoContext when
// nothing relevant is found. Search failures are returned as errors.
func (a *Assembler) BuildContext(ctx context.Context, query string, p Params) (string, error) {
	return a.BuildContextWithMonitor(ctx, query, p, nil)
}

// BuildContextWithMonitor is BuildContext with callbacks at each stage.
func (a *Assembler) BuildContextWithMonitor(ctx context.Context, query string, p Params, monitor AssemblyMonitor) (string, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query, p)

	if p.K < 1 {
		monitor.Finish(0, 0)
		return NoContext, nil
	}

	hits, err := a.searcher.SearchText(ctx, query, p.K)
	if err != nil {
		a.logger.Error("error searching chunks", "k", p.K, "err", err)
		return "", fmt.Errorf("searching context: %w", err)
	}
	monitor.AfterSearch(hits)

	kept := filterAndDedupe(hits, p.MinScore)
	monitor.AfterFilter(kept)

	entries, length := pack(kept, p.MaxLength)
	if dropped := len(kept) - len(entries); dropped > 0 {
		monitor.Truncated(dropped)
	}
	monitor.Finish(len(entries), length)

	a.logger.Debug("context assembled",
		"hits", len(hits),
		"kept", len(kept),
		"entries", len(entries),
		"length", length)

	if len(entries) == 0 {
		return NoContext, nil
	}
	return strings.Join(entries, entrySeparator), nil
}

// filterAndDedupe drops chunks below minScore and later copies of identical
// content. The result is in descending score order.
func filterAndDedupe(hits []core.RetrievedChunk, minScore float32) []core.RetrievedChunk {
	ranked := make([]core.RetrievedChunk, len(hits))
	copy(ranked, hits)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	seen := make(map[string]struct{}, len(ranked))
	kept := make([]core.RetrievedChunk, 0, len(ranked))
	for _, hit := range ranked {
		if hit.Score < minScore {
			continue
		}
		if _, dup := seen[hit.Content]; dup {
			continue
		}
		seen[hit.Content] = struct{}{}
		kept = append(kept, hit)
	}
	return kept
}

// pack formats chunks in order until the next entry would exceed maxLength.
// Each entry is charged its rune length plus the separator.
func pack(chunks []core.RetrievedChunk, maxLength int) ([]string, int) {
	entries := make([]string, 0, len(chunks))
	total := 0
	for i, chunk := range chunks {
		entry := formatEntry(i+1, chunk)
		cost := utf8.RuneCountInString(entry) + utf8.RuneCountInString(entrySeparator)
		if maxLength > 0 && total+cost > maxLength {
			break
		}
		entries = append(entries, entry)
		total += cost
	}
	return entries, total
}

func formatEntry(ordinal int, chunk core.RetrievedChunk) string {
	return fmt.Sprintf("【片段%d】(来源: %s)\n相似度: %.3f\n%s", ordinal, provenance(chunk), chunk.Score, chunk.Content)
}

func provenance(chunk core.RetrievedChunk) string {
	if chunk.Title != "" {
		return chunk.Title
	}
	return chunk.DocumentID
}
