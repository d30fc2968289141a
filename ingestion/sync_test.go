package ingestion

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/schedule"
)

var errFlaky = errors.New("connection reset")

// roundRecorder collects round stats.
type roundRecorder struct {
	noopObserver
	mu     sync.Mutex
	rounds []RoundStats
	report *Report
}

func (r *roundRecorder) RoundFinished(stats RoundStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, stats)
}

func (r *roundRecorder) Finished(report *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report = report
}

func TestNewSyncer_Validation(t *testing.T) {
	f := newSyncFixture(t, 0)

	_, err := NewSyncer(nil, f.writer, f.stores.Documents, f.sched, f.chunks, WithRootID("root"))
	assert.ErrorIs(t, err, ErrSourceRequired)

	_, err = NewSyncer(f.source, nil, f.stores.Documents, f.sched, f.chunks, WithRootID("root"))
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = NewSyncer(f.source, f.writer, nil, f.sched, f.chunks, WithRootID("root"))
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewSyncer(f.source, f.writer, f.stores.Documents, nil, f.chunks, WithRootID("root"))
	assert.ErrorIs(t, err, ErrSchedulerRequired)

	_, err = NewSyncer(f.source, f.writer, f.stores.Documents, f.sched, nil, WithRootID("root"))
	assert.ErrorIs(t, err, ErrChunkerRequired)

	_, err = NewSyncer(f.source, f.writer, f.stores.Documents, f.sched, f.chunks)
	assert.ErrorIs(t, err, ErrRootIDRequired)

	_, err = NewSyncer(f.source, f.writer, f.stores.Documents, f.sched, f.chunks, WithRootID("root"), WithMaxRounds(0))
	assert.Error(t, err)
}

func TestSyncer_InvalidMode(t *testing.T) {
	f := newSyncFixture(t, 1)
	s := f.syncer(t)

	_, err := s.Run(context.Background(), core.SyncMode("partial"))
	assert.ErrorIs(t, err, core.ErrInvalidSyncMode)
}

func TestSyncer_CatalogFailure(t *testing.T) {
	f := newSyncFixture(t, 1)
	f.source.catalogErr = core.ErrTransientFetch
	s := f.syncer(t)

	report, err := s.Run(context.Background(), core.SyncModeFull)
	assert.ErrorIs(t, err, core.ErrTransientFetch)
	assert.Nil(t, report)
}

func TestSyncer_AllSucceed(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, 5)
	s := f.syncer(t)

	report, err := s.Run(ctx, core.SyncModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Rounds)
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 5, report.Succeeded)
	assert.Equal(t, "drained", report.Result())
	assert.True(t, report.Drained())
	assert.NoError(t, report.Err())

	known, err := f.stores.Documents.FindExistingUpdatedAt(ctx, DefaultSourceType)
	require.NoError(t, err)
	assert.Len(t, known, 5)
	for _, item := range f.source.items {
		assert.Equal(t, int64(100), known[item.ID])
		assert.NotEmpty(t, f.writer.documentChunks(item.ID))
	}

	doc, err := f.stores.Documents.GetDocument(ctx, DefaultSourceType, "item-00")
	require.NoError(t, err)
	assert.Equal(t, "Title item-00", doc.Title)
	assert.Equal(t, "https://catalog.test/items/item-00", doc.SourceURL)
	assert.Equal(t, "body of item-00\n", doc.Content)
}

func TestSyncer_ConvergesAfterTransientFailures(t *testing.T) {
	f := newSyncFixture(t, 10)
	f.source.failFunc = func(_ string, attempt int) error {
		if attempt == 1 {
			return errFlaky
		}
		return nil
	}
	rec := &roundRecorder{}
	s := f.syncer(t, WithObserver(rec))

	report, err := s.Run(context.Background(), core.SyncModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Rounds)
	assert.Equal(t, 10, report.Succeeded)
	assert.Empty(t, report.Remaining)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, "drained", report.Result())

	require.Len(t, rec.rounds, 2)
	assert.Equal(t, RoundStats{Round: 1, Attempted: 10, Failed: 10, Remaining: 10}, withoutDuration(rec.rounds[0]))
	assert.Equal(t, RoundStats{Round: 2, Attempted: 10, Succeeded: 10}, withoutDuration(rec.rounds[1]))
	assert.Same(t, report, rec.report)
}

func TestSyncer_SkipsPersistentParseFailures(t *testing.T) {
	f := newSyncFixture(t, 3)
	f.source.failFunc = func(id string, _ int) error {
		if id == "item-01" {
			return core.ErrParse
		}
		return nil
	}
	s := f.syncer(t)

	report, err := s.Run(context.Background(), core.SyncModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Rounds)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "item-01", report.Skipped[0].Item.ID)
	assert.Equal(t, 2, report.Skipped[0].Attempts)
	assert.ErrorIs(t, report.Skipped[0].Err, core.ErrParse)
	assert.Empty(t, report.Remaining)
	assert.Equal(t, "drained", report.Result())
	assert.NoError(t, report.Err())
	assert.Equal(t, 2, f.source.fetchCount("item-01"))
}

func TestSyncer_StopsAtMaxRounds(t *testing.T) {
	f := newSyncFixture(t, 2)
	f.source.failFunc = func(id string, _ int) error {
		if id == "item-00" {
			return errFlaky
		}
		return nil
	}
	s := f.syncer(t, WithMaxRounds(3))

	report, err := s.Run(context.Background(), core.SyncModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Rounds)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Remaining, 1)
	assert.Equal(t, "item-00", report.Remaining[0].Item.ID)
	assert.Equal(t, 3, report.Remaining[0].Attempts)
	assert.Equal(t, "partial", report.Result())

	err = report.Err()
	assert.ErrorIs(t, err, ErrUnresolvedItems)
	assert.ErrorIs(t, err, errFlaky)
}

func TestSyncer_IncrementalSkipsSyncedItems(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, 4)
	s := f.syncer(t)

	_, err := s.Run(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	upserts := f.writer.upsertCount()

	report, err := s.Run(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 0, report.Rounds)
	assert.Equal(t, "drained", report.Result())
	assert.Equal(t, upserts, f.writer.upsertCount())
}

func TestSyncer_UnchangedContentSkipsEmbedding(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, 3)
	s := f.syncer(t)

	_, err := s.Run(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	upserts := f.writer.upsertCount()

	// Newer timestamps, same bodies.
	for i := range f.source.items {
		f.source.items[i].UpdatedAt = 200
	}

	report, err := s.Run(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 3, report.Unchanged)
	assert.Equal(t, upserts, f.writer.upsertCount())

	known, err := f.stores.Documents.FindExistingUpdatedAt(ctx, DefaultSourceType)
	require.NoError(t, err)
	for _, item := range f.source.items {
		assert.Equal(t, int64(200), known[item.ID])
	}
}

func TestSyncer_FullModeReindexesEverything(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t, 3)
	s := f.syncer(t)

	_, err := s.Run(ctx, core.SyncModeIncremental)
	require.NoError(t, err)
	upserts := f.writer.upsertCount()

	report, err := s.Run(ctx, core.SyncModeFull)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 0, report.Unchanged)
	assert.Equal(t, upserts+3, f.writer.upsertCount())

	// Re-indexing replaces chunks rather than adding to them.
	assert.Len(t, f.writer.documentChunks("item-00"), 1)
}

func TestSyncer_CancellationLeavesQueuedItemsUnattempted(t *testing.T) {
	f := newSyncFixture(t, 6)

	sched, err := schedule.New(schedule.WithMinInterval(0), schedule.WithMaxConcurrent(1))
	require.NoError(t, err)
	t.Cleanup(sched.Close)
	f.sched = sched

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.source.failFunc = func(id string, _ int) error {
		if id == "item-00" {
			cancel()
		}
		return nil
	}
	s := f.syncer(t)

	report, err := s.Run(ctx, core.SyncModeIncremental)
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Equal(t, "cancelled", report.Result())
	assert.ErrorIs(t, report.Err(), context.Canceled)
	assert.Equal(t, 1, report.Rounds)
	assert.GreaterOrEqual(t, report.Succeeded, 1)
	assert.NotEmpty(t, report.NotAttempted)
	assert.Equal(t, 6, report.Succeeded+len(report.NotAttempted))

	// The item that started finished and was recorded.
	_, err = f.stores.Documents.GetDocument(context.Background(), DefaultSourceType, "item-00")
	assert.NoError(t, err)
}

func TestSyncer_CancellationReportsStartedFailuresAsRemaining(t *testing.T) {
	f := newSyncFixture(t, 3)

	sched, err := schedule.New(schedule.WithMinInterval(0), schedule.WithMaxConcurrent(1))
	require.NoError(t, err)
	t.Cleanup(sched.Close)
	f.sched = sched

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.source.failFunc = func(id string, _ int) error {
		if id == "item-00" {
			cancel()
			return errFlaky
		}
		return nil
	}
	s := f.syncer(t)

	report, err := s.Run(ctx, core.SyncModeIncremental)
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Zero(t, report.Succeeded)

	require.Len(t, report.Remaining, 1)
	assert.Equal(t, "item-00", report.Remaining[0].Item.ID)
	assert.ErrorIs(t, report.Remaining[0].Err, errFlaky)
	assert.Equal(t, 1, report.Remaining[0].Attempts)

	require.Len(t, report.NotAttempted, 2)
	assert.Equal(t, "item-01", report.NotAttempted[0].ID)
	assert.Equal(t, "item-02", report.NotAttempted[1].ID)
	assert.Zero(t, f.source.fetchCount("item-01"))
}

func TestSyncer_CancelledDuringRoundDelay(t *testing.T) {
	f := newSyncFixture(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.source.failFunc = func(_ string, _ int) error {
		cancel()
		return errFlaky
	}
	s := f.syncer(t, WithRoundDelay(time.Hour))

	done := make(chan *Report, 1)
	go func() {
		report, _ := s.Run(ctx, core.SyncModeIncremental)
		done <- report
	}()

	select {
	case report := <-done:
		require.NotNil(t, report)
		assert.True(t, report.Cancelled)
		assert.Equal(t, 1, report.Rounds)
		assert.Empty(t, report.NotAttempted)
		require.Len(t, report.Remaining, 1)
		assert.Equal(t, "item-00", report.Remaining[0].Item.ID)
		assert.ErrorIs(t, report.Remaining[0].Err, errFlaky)
		assert.Equal(t, 1, report.Remaining[0].Attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestSyncer_MetricsAndProgress(t *testing.T) {
	f := newSyncFixture(t, 4)
	f.source.failFunc = func(_ string, attempt int) error {
		if attempt == 1 {
			return errFlaky
		}
		return nil
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	var out bytes.Buffer
	progress := NewProgressObserver(&out, 1)

	s := f.syncer(t, WithObserver(metrics), WithObserver(progress))

	_, err := s.Run(context.Background(), core.SyncModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("drained")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RoundsTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.ItemsTotal.WithLabelValues("ingested")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.ItemsTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PendingItems))

	assert.Equal(t, 4, progress.Tracker.Current())
	assert.Contains(t, out.String(), "Progress: 4/4")
}

func withoutDuration(s RoundStats) RoundStats {
	s.Duration = 0
	return s
}
