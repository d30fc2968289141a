package ingestion

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/ragsync/core"
)

// ProgressTracker tracks and reports progress of long-running operations.
type ProgressTracker struct {
	writer         io.Writer
	unit           string
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// writer: where to write progress output (typically os.Stderr)
// unit: what is being counted, e.g. "items"
// reportInterval: report progress every N units
func NewProgressTracker(writer io.Writer, unit string, reportInterval int) *ProgressTracker {
	if reportInterval < 1 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		unit:           unit,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress towards total.
func (p *ProgressTracker) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.total = total
	p.current = 0
	p.lastReported = 0
}

// Update sets the current progress to the specified value.
func (p *ProgressTracker) Update(current int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.current = min(current, p.total)
	p.maybeReport()
}

// Increment increases the current progress by the specified amount.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.current = min(p.current+delta, p.total)
	p.maybeReport()
}

// Current returns the current progress.
func (p *ProgressTracker) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish prints final progress. Unlike the periodic reports it does not
// force current up to total, so a partial run reads as partial.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer) // Print newline after final progress
	p.started = false
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.startTime.IsZero() {
		return 0
	}
	return time.Since(p.startTime)
}

// maybeReport reports if we've crossed a report interval. Must be called with lock held.
func (p *ProgressTracker) maybeReport() {
	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.current) / elapsed.Seconds()
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%) - %.1f %s/s",
		p.current, p.total, percentage, rate, p.unit)
}

// ProgressObserver reports sync progress through a ProgressTracker.
type ProgressObserver struct {
	Tracker *ProgressTracker
}

var _ Observer = (*ProgressObserver)(nil)

// NewProgressObserver creates an observer writing to w every reportInterval items.
func NewProgressObserver(w io.Writer, reportInterval int) *ProgressObserver {
	return &ProgressObserver{Tracker: NewProgressTracker(w, "items", reportInterval)}
}

func (o *ProgressObserver) Started(total int) { o.Tracker.Start(total) }

func (o *ProgressObserver) ItemSucceeded(_ core.CatalogItem, _ Outcome) { o.Tracker.Increment(1) }

func (o *ProgressObserver) RoundFinished(_ RoundStats) {}

func (o *ProgressObserver) Finished(_ *Report) { o.Tracker.Finish() }
