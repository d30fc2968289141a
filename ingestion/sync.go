package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/ragsync/chunker"
	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/schedule"
	"github.com/poiesic/ragsync/storage"
)

const (
	// DefaultMaxRounds caps the number of rounds in one run.
	DefaultMaxRounds = 10

	// DefaultMaxParseFailures is how many rounds a parse error is retried
	// before the item is skipped.
	DefaultMaxParseFailures = 2

	// DefaultSourceType tags documents ingested from the remote catalog.
	DefaultSourceType = "catalog"
)

// ItemFailure is an item that did not ingest, with its most recent error.
type ItemFailure struct {
	Item     core.CatalogItem
	Err      error
	Attempts int
}

// Report summarizes a sync run.
type Report struct {
	Mode         core.SyncMode
	Rounds       int
	Total        int // size of the initial pending set
	Succeeded    int // includes Unchanged
	Unchanged    int
	Remaining    []ItemFailure       // attempted and still failing at the end of the run
	Skipped      []ItemFailure       // parse failures given up on
	NotAttempted []core.CatalogItem  // never started before cancellation
	Cancelled    bool
	Duration     time.Duration
}

// Drained reports whether every pending item was resolved.
func (r *Report) Drained() bool {
	return !r.Cancelled && len(r.Remaining) == 0 && len(r.NotAttempted) == 0
}

// Result is a short label for the run outcome.
func (r *Report) Result() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case len(r.Remaining) > 0:
		return "partial"
	default:
		return "drained"
	}
}

// Err returns nil for a drained run, ErrUnresolvedItems joined with each
// remaining item's error for a partial run, and context.Canceled for a
// cancelled run.
func (r *Report) Err() error {
	switch {
	case r.Cancelled:
		return context.Canceled
	case len(r.Remaining) > 0:
		errs := make([]error, 0, len(r.Remaining)+1)
		errs = append(errs, fmt.Errorf("%w: %d item(s) after %d rounds", ErrUnresolvedItems, len(r.Remaining), r.Rounds))
		for _, f := range r.Remaining {
			errs = append(errs, f.Err)
		}
		return errors.Join(errs...)
	default:
		return nil
	}
}

// Syncer drives the retry-convergence loop over a catalog.
type Syncer struct {
	source           CatalogSource
	documents        storage.DocumentRepository
	scheduler        *schedule.Scheduler
	proc             processor
	rootID           string
	sourceType       string
	categoryID       string
	maxRounds        int
	maxParseFailures int
	roundDelay       time.Duration
	observer         observers
	logger           *slog.Logger
}

// Option configures a Syncer.
type Option func(*Syncer) error

// WithRootID sets the catalog root to list.
func WithRootID(rootID string) Option {
	return func(s *Syncer) error {
		s.rootID = rootID
		return nil
	}
}

// WithSourceType sets the document store source type.
// Default is DefaultSourceType.
func WithSourceType(sourceType string) Option {
	return func(s *Syncer) error {
		if sourceType == "" {
			return fmt.Errorf("%w: empty", storage.ErrInvalidSourceType)
		}
		s.sourceType = sourceType
		return nil
	}
}

// WithCategoryID sets the category stored on every chunk.
func WithCategoryID(categoryID string) Option {
	return func(s *Syncer) error {
		s.categoryID = categoryID
		return nil
	}
}

// WithMaxRounds caps the rounds per run.
// Default is DefaultMaxRounds.
func WithMaxRounds(n int) Option {
	return func(s *Syncer) error {
		if n < 1 {
			return fmt.Errorf("max rounds must be positive, got %d", n)
		}
		s.maxRounds = n
		return nil
	}
}

// WithMaxParseFailures sets how many rounds a parse error is retried.
// Default is DefaultMaxParseFailures.
func WithMaxParseFailures(n int) Option {
	return func(s *Syncer) error {
		if n < 1 {
			return fmt.Errorf("max parse failures must be positive, got %d", n)
		}
		s.maxParseFailures = n
		return nil
	}
}

// WithRoundDelay waits d before every round after the first.
// Default is no delay.
func WithRoundDelay(d time.Duration) Option {
	return func(s *Syncer) error {
		if d < 0 {
			return fmt.Errorf("round delay cannot be negative, got %s", d)
		}
		s.roundDelay = d
		return nil
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(observer Observer) Option {
	return func(s *Syncer) error {
		if observer != nil {
			s.observer = append(s.observer, observer)
		}
		return nil
	}
}

// WithMetrics records run metrics. Shorthand for WithObserver(m).
func WithMetrics(m *Metrics) Option {
	return func(s *Syncer) error {
		if m != nil {
			s.observer = append(s.observer, m)
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSyncer creates a Syncer.
func NewSyncer(
	source CatalogSource,
	index ChunkWriter,
	documents storage.DocumentRepository,
	scheduler *schedule.Scheduler,
	chunks *chunker.Chunker,
	opts ...Option,
) (*Syncer, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if scheduler == nil {
		return nil, ErrSchedulerRequired
	}
	if chunks == nil {
		return nil, ErrChunkerRequired
	}

	s := &Syncer{
		source:           source,
		documents:        documents,
		scheduler:        scheduler,
		sourceType:       DefaultSourceType,
		maxRounds:        DefaultMaxRounds,
		maxParseFailures: DefaultMaxParseFailures,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.rootID == "" {
		return nil, ErrRootIDRequired
	}
	s.logger = s.logger.With("component", "syncer")

	s.proc = &itemProcessor{
		source:     source,
		index:      index,
		documents:  documents,
		chunker:    chunks,
		sourceType: s.sourceType,
		categoryID: s.categoryID,
		logger:     s.logger,
	}

	return s, nil
}

// itemResult is the settled state of one item in a round.
type itemResult struct {
	item    core.CatalogItem
	outcome Outcome
	err     error
	started bool
}

// Run syncs the catalog. The returned error covers failures before the loop
// starts (listing the catalog, reading stored timestamps, an invalid mode);
// once the loop runs, per-item failures are reported in the Report.
// Cancelling ctx stops further rounds and leaves queued items unattempted.
func (s *Syncer) Run(ctx context.Context, mode core.SyncMode) (*Report, error) {
	if err := core.ValidateSyncMode(mode); err != nil {
		return nil, err
	}

	started := time.Now()
	report := &Report{Mode: mode}
	logger := s.logger.With("mode", mode)

	listing, err := s.source.FetchCatalog(ctx, s.rootID)
	if err != nil {
		return nil, fmt.Errorf("listing catalog %s: %w", s.rootID, err)
	}

	pending := listing
	if mode == core.SyncModeIncremental {
		known, err := s.documents.FindExistingUpdatedAt(ctx, s.sourceType)
		if err != nil {
			return nil, fmt.Errorf("reading ingested timestamps: %w", err)
		}
		pending = Pending(listing, known)
	}

	report.Total = len(pending)
	logger.Info("sync started", "catalog", len(listing), "pending", len(pending))
	s.observer.Started(len(pending))

	attempts := make(map[string]int)
	parseFailures := make(map[string]int)
	lastErr := make(map[string]error)

	for len(pending) > 0 {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		if report.Rounds >= s.maxRounds {
			break
		}
		if report.Rounds > 0 && s.roundDelay > 0 {
			if err := sleep(ctx, s.roundDelay); err != nil {
				report.Cancelled = true
				break
			}
		}

		report.Rounds++
		round := report.Rounds
		roundStart := time.Now()

		results := s.runRound(ctx, pending, mode)

		stats := RoundStats{Round: round}
		var next []core.CatalogItem
		for _, r := range results {
			if !r.started && ctx.Err() != nil {
				next = append(next, r.item)
				continue
			}
			stats.Attempted++
			attempts[r.item.ID]++

			if r.err == nil {
				stats.Succeeded++
				report.Succeeded++
				if r.outcome == OutcomeUnchanged {
					report.Unchanged++
				}
				s.observer.ItemSucceeded(r.item, r.outcome)
				continue
			}

			lastErr[r.item.ID] = r.err
			if errors.Is(r.err, core.ErrParse) {
				parseFailures[r.item.ID]++
				if parseFailures[r.item.ID] >= s.maxParseFailures {
					stats.Skipped++
					report.Skipped = append(report.Skipped, ItemFailure{Item: r.item, Err: r.err, Attempts: attempts[r.item.ID]})
					logger.Warn("skipping unparseable item", "item", r.item.ID, "attempts", attempts[r.item.ID], "err", r.err)
					continue
				}
			}

			stats.Failed++
			logger.Debug("item failed", "round", round, "item", r.item.ID, "err", r.err)
			next = append(next, r.item)
		}

		pending = next
		stats.Remaining = len(pending)
		stats.Duration = time.Since(roundStart)

		logger.Info("sync round finished",
			"round", round,
			"attempted", stats.Attempted,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"remaining", stats.Remaining,
			"duration", stats.Duration)
		s.observer.RoundFinished(stats)
	}

	if len(pending) > 0 {
		if ctx.Err() != nil {
			report.Cancelled = true
		}
		for _, item := range pending {
			// Only a cancelled run leaves items that never started.
			if attempts[item.ID] == 0 {
				report.NotAttempted = append(report.NotAttempted, item)
				continue
			}
			report.Remaining = append(report.Remaining, ItemFailure{
				Item:     item,
				Err:      lastErr[item.ID],
				Attempts: attempts[item.ID],
			})
		}
	}

	report.Duration = time.Since(started)
	logger.Info("sync finished",
		"result", report.Result(),
		"rounds", report.Rounds,
		"succeeded", report.Succeeded,
		"unchanged", report.Unchanged,
		"remaining", len(report.Remaining),
		"skipped", len(report.Skipped),
		"notAttempted", len(report.NotAttempted),
		"duration", report.Duration)
	s.observer.Finished(report)

	return report, nil
}

// runRound schedules every pending item and waits for all of them to settle.
// Started tasks run on a context detached from ctx's cancellation so they
// drain; tasks still queued when ctx is cancelled never start.
func (s *Syncer) runRound(ctx context.Context, pending []core.CatalogItem, mode core.SyncMode) []itemResult {
	detached := context.WithoutCancel(ctx)

	type scheduled struct {
		item    core.CatalogItem
		future  *schedule.Future[Outcome]
		started *bool
	}

	tasks := make([]scheduled, len(pending))
	for i, item := range pending {
		started := new(bool)
		future := schedule.Schedule(s.scheduler, ctx, func(context.Context) (Outcome, error) {
			*started = true
			return s.proc.process(detached, item, mode)
		})
		tasks[i] = scheduled{item: item, future: future, started: started}
	}

	results := make([]itemResult, len(tasks))
	for i, t := range tasks {
		// Futures always settle: started tasks return, queued ones fail
		// with ctx's error or ErrClosed.
		outcome, err := t.future.Await(detached)
		results[i] = itemResult{
			item:    t.item,
			outcome: outcome,
			err:     err,
			started: *t.started,
		}
	}
	return results
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
