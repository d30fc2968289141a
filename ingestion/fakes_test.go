package ingestion

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragsync/catalog"
	"github.com/poiesic/ragsync/chunker"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/schedule"
	"github.com/poiesic/ragsync/storage/badger"
)

// fakeSource serves a fixed catalog. failFunc, when set, runs before every
// item fetch and may return an error to fail it.
type fakeSource struct {
	mu       sync.Mutex
	items    []core.CatalogItem
	bodies   map[string]string
	fetches  map[string]int
	failFunc func(id string, attempt int) error

	catalogErr error
}

func newFakeSource(n int) *fakeSource {
	s := &fakeSource{bodies: map[string]string{}, fetches: map[string]int{}}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("item-%02d", i)
		s.items = append(s.items, core.CatalogItem{ID: id, Title: "Title " + id, UpdatedAt: 100})
		s.bodies[id] = "body of " + id
	}
	return s
}

func (s *fakeSource) FetchCatalog(_ context.Context, _ string) ([]core.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalogErr != nil {
		return nil, s.catalogErr
	}
	return append([]core.CatalogItem(nil), s.items...), nil
}

func (s *fakeSource) FetchItem(_ context.Context, id string) (*catalog.Item, error) {
	s.mu.Lock()
	s.fetches[id]++
	attempt := s.fetches[id]
	body := s.bodies[id]
	fail := s.failFunc
	s.mu.Unlock()

	if fail != nil {
		if err := fail(id, attempt); err != nil {
			return nil, err
		}
	}
	return &catalog.Item{
		ID: id,
		Content: core.RichDocument{Zones: []core.Zone{
			{ID: "z1", Ops: []core.Op{{Kind: core.OpPlain, Text: body}}},
		}},
	}, nil
}

func (s *fakeSource) ItemURL(id string) string {
	return "https://catalog.test/items/" + id
}

func (s *fakeSource) fetchCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[id]
}

// fakeWriter records chunks per document.
type fakeWriter struct {
	mu        sync.Mutex
	chunks    map[string][]core.TextChunk
	upserts   int
	deletes   int
	upsertErr error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{chunks: map[string][]core.TextChunk{}}
}

func (w *fakeWriter) Upsert(_ context.Context, chunks []core.TextChunk) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.upsertErr != nil {
		return w.upsertErr
	}
	w.upserts++
	for _, c := range chunks {
		w.chunks[c.DocumentID] = append(w.chunks[c.DocumentID], c)
	}
	return nil
}

func (w *fakeWriter) DeleteDocument(_ context.Context, documentID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deletes++
	delete(w.chunks, documentID)
	return nil
}

func (w *fakeWriter) upsertCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.upserts
}

func (w *fakeWriter) documentChunks(id string) []core.TextChunk {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]core.TextChunk(nil), w.chunks[id]...)
}

type syncFixture struct {
	source *fakeSource
	writer *fakeWriter
	stores *badger.Stores
	sched  *schedule.Scheduler
	chunks *chunker.Chunker
}

func newSyncFixture(t *testing.T, items int) *syncFixture {
	t.Helper()

	stores, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	sched, err := schedule.New(schedule.WithMinInterval(0), schedule.WithMaxConcurrent(4))
	require.NoError(t, err)
	t.Cleanup(sched.Close)

	c, err := chunker.New(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
	require.NoError(t, err)

	return &syncFixture{
		source: newFakeSource(items),
		writer: newFakeWriter(),
		stores: stores,
		sched:  sched,
		chunks: c,
	}
}

func (f *syncFixture) syncer(t *testing.T, opts ...Option) *Syncer {
	t.Helper()
	opts = append([]Option{WithRootID("root")}, opts...)
	s, err := NewSyncer(f.source, f.writer, f.stores.Documents, f.sched, f.chunks, opts...)
	require.NoError(t, err)
	return s
}
