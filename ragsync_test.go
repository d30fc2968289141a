package ragsync

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragsync/ai/mock"
	"github.com/poiesic/ragsync/catalog"
	"github.com/poiesic/ragsync/config"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/retrieval"
	"github.com/poiesic/ragsync/vectorstore"
)

const testDims = 16

// stubSource serves a small catalog. gate, when set, blocks every item
// fetch until it is closed. failing lists ids that always fail.
type stubSource struct {
	mu      sync.Mutex
	items   []core.CatalogItem
	gate    chan struct{}
	failing map[string]bool
}

func newStubSource(n int) *stubSource {
	s := &stubSource{failing: map[string]bool{}}
	for i := 0; i < n; i++ {
		s.items = append(s.items, core.CatalogItem{
			ID:        fmt.Sprintf("page-%d", i),
			Title:     fmt.Sprintf("Page %d", i),
			UpdatedAt: 1700000000,
		})
	}
	return s
}

func (s *stubSource) FetchCatalog(_ context.Context, _ string) ([]core.CatalogItem, error) {
	return s.items, nil
}

func (s *stubSource) FetchItem(_ context.Context, id string) (*catalog.Item, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	fail := s.failing[id]
	s.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("%w: item %s unavailable", core.ErrTransientFetch, id)
	}
	return &catalog.Item{
		ID: id,
		Content: core.RichDocument{Zones: []core.Zone{{
			ID: "main",
			Ops: []core.Op{
				{Kind: core.OpHeading, Level: 1, Text: "Section"},
				{Kind: core.OpPlain, Text: "\nknowledge about " + id},
			},
		}}},
	}, nil
}

func (s *stubSource) ItemURL(id string) string {
	return "https://docs.example.com/items/" + id
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
source:
  base_url: https://docs.example.com/api
  root_id: root
index:
  backend: badger
  vector_size: 16
embedding:
  dimensions: 16
scheduler:
  min_interval: 0s
sync:
  round_delay: 0s
  max_rounds: 3
storage:
  in_memory: true
context:
  min_score: 0
`))
	require.NoError(t, err)
	return cfg
}

func openTestService(t *testing.T, source *stubSource, opts ...Option) *Service {
	t.Helper()
	return openTestServiceWithConfig(t, testConfig(t), source, opts...)
}

func openTestServiceWithConfig(t *testing.T, cfg *config.Config, source *stubSource, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithEmbedder(mock.NewMockEmbedderWithDimensions(testDims)),
		WithCatalogSource(source),
	}, opts...)
	svc, err := Open(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestOpen(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := Open(nil)
		assert.ErrorIs(t, err, ErrConfigRequired)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Source.RootID = ""
		_, err := Open(cfg)
		assert.Error(t, err)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Open(testConfig(t), WithEmbedder(mock.NewMockEmbedderWithDimensions(8)), WithCatalogSource(newStubSource(0)))
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	})
}

func TestService_SyncAndBuildContext(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	svc := openTestService(t, newStubSource(3), WithRegisterer(reg))

	id, err := svc.TriggerSync(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	svc.Wait(id)

	job, err := svc.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.SyncStatusCompleted, job.Status)
	assert.Equal(t, 3, job.ItemsTotal)
	assert.Equal(t, 3, job.ItemsProcessed)
	assert.False(t, job.CompletedAt.IsZero())
	assert.Empty(t, job.Error)

	doc, err := svc.Documents().GetDocument(ctx, "catalog", "page-1")
	require.NoError(t, err)
	assert.Equal(t, "\n# Section\nknowledge about page-1\n", doc.Content)
	assert.Equal(t, "https://docs.example.com/items/page-1", doc.SourceURL)

	text := svc.BuildContext(ctx, doc.Content, WithK(1), WithMinScore(0.99), WithMaxLength(1000))
	assert.True(t, strings.HasPrefix(text, "【片段1】(来源: Page 1)\n相似度: 1.000\n"), text)

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.RunsTotal.WithLabelValues("drained")))

	jobs, err := svc.Jobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].Id)
}

func TestService_BuildContextKeepsConfiguredBounds(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Context.MinScore = 0.99
	svc := openTestServiceWithConfig(t, cfg, newStubSource(3))

	id, err := svc.TriggerSync(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	svc.Wait(id)

	doc, err := svc.Documents().GetDocument(ctx, "catalog", "page-1")
	require.NoError(t, err)

	// Overriding k alone still filters by the configured minimum score.
	text := svc.BuildContext(ctx, doc.Content, WithK(3))
	assert.Equal(t, 1, strings.Count(text, "【片段"), text)
	assert.Contains(t, text, "(来源: Page 1)")

	// A configured length budget too small for any entry still applies.
	cfg.Context.MaxLength = 10
	assert.Equal(t, retrieval.NoContext, svc.BuildContext(ctx, doc.Content, WithK(3)))

	// An explicit override replaces only its own bound.
	text = svc.BuildContext(ctx, doc.Content, WithK(3), WithMaxLength(0))
	assert.Equal(t, 1, strings.Count(text, "【片段"), text)
}

func TestService_SingleActiveJob(t *testing.T) {
	ctx := context.Background()
	source := newStubSource(2)
	source.gate = make(chan struct{})
	svc := openTestService(t, source)

	first, err := svc.TriggerSync(ctx, core.SyncModeFull)
	require.NoError(t, err)

	_, err = svc.TriggerSync(ctx, core.SyncModeIncremental)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(source.gate)
	svc.Wait(first)

	second, err := svc.TriggerSync(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	svc.Wait(second)
	assert.NotEqual(t, first, second)
}

func TestService_CancelSync(t *testing.T) {
	ctx := context.Background()
	source := newStubSource(5)
	source.gate = make(chan struct{})

	// One task at a time, so items behind the blocked one stay queued.
	cfg := testConfig(t)
	cfg.Scheduler.MaxConcurrent = 1
	svc := openTestServiceWithConfig(t, cfg, source)

	id, err := svc.TriggerSync(ctx, core.SyncModeIncremental)
	require.NoError(t, err)

	assert.True(t, svc.CancelSync(id))
	close(source.gate)
	svc.Wait(id)

	job, err := svc.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.SyncStatusCancelled, job.Status)
	assert.Less(t, job.ItemsProcessed, 5)

	assert.False(t, svc.CancelSync(id), "finished jobs cannot be cancelled")
	assert.False(t, svc.CancelSync(core.ID(9999)))
}

func TestService_UnresolvedItemsFailJob(t *testing.T) {
	ctx := context.Background()
	source := newStubSource(3)
	source.failing["page-2"] = true
	svc := openTestService(t, source)

	id, err := svc.TriggerSync(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	svc.Wait(id)

	job, err := svc.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.SyncStatusFailed, job.Status)
	assert.Equal(t, 2, job.ItemsProcessed)
	assert.Contains(t, job.Error, "unresolved items")
	assert.Contains(t, job.Error, "page-2")
}

func TestService_InvalidMode(t *testing.T) {
	svc := openTestService(t, newStubSource(0))

	_, err := svc.TriggerSync(context.Background(), core.SyncMode("sometimes"))
	assert.ErrorIs(t, err, core.ErrInvalidSyncMode)
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) EnsureCollection(context.Context, uint64) error { return fmt.Errorf("unreachable") }
func (brokenStore) UpsertPoints(context.Context, []vectorstore.Point) error {
	return fmt.Errorf("unreachable")
}
func (brokenStore) DeleteDocument(context.Context, string) error { return fmt.Errorf("unreachable") }
func (brokenStore) Search(context.Context, []float32, int) ([]vectorstore.ScoredPoint, error) {
	return nil, fmt.Errorf("unreachable")
}

func TestService_BuildContextDegrades(t *testing.T) {
	svc := openTestService(t, newStubSource(0), WithVectorStore(brokenStore{}))

	text := svc.BuildContext(context.Background(), "anything")
	assert.Equal(t, retrieval.NoContext, text)
}

func TestService_Reindex(t *testing.T) {
	ctx := context.Background()
	svc := openTestService(t, newStubSource(4))

	id, err := svc.TriggerSync(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	svc.Wait(id)

	var out strings.Builder
	n, err := svc.Reindex(ctx, &out, false)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, out.String(), "Reindex complete")
}

func TestService_RecoversInterruptedJob(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Storage.InMemory = false
	cfg.Storage.Path = filepath.Join(t.TempDir(), "db")

	open := func() *Service {
		svc, err := Open(cfg,
			WithEmbedder(mock.NewMockEmbedderWithDimensions(testDims)),
			WithCatalogSource(newStubSource(1)))
		require.NoError(t, err)
		return svc
	}

	svc := open()
	job, err := svc.stores.Jobs.CreateJob(ctx, &core.SyncJob{Mode: core.SyncModeFull, Status: core.SyncStatusRunning, StartedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	svc = open()
	defer svc.Close()

	recovered, err := svc.Job(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.SyncStatusFailed, recovered.Status)
	assert.Contains(t, recovered.Error, "interrupted")

	id, err := svc.TriggerSync(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	svc.Wait(id)
}
