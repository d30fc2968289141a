package ingestion

import (
	"time"

	"github.com/poiesic/ragsync/core"
)

// RoundStats summarizes one round of the sync loop.
type RoundStats struct {
	Round     int
	Attempted int
	Succeeded int
	Failed    int // still pending after the round
	Skipped   int // parse failures given up on this round
	Remaining int // pending set size for the next round
	Duration  time.Duration
}

// Observer provides hooks to follow a sync run.
// Hooks are called from the goroutine running Syncer.Run.
type Observer interface {
	Started(total int)
	ItemSucceeded(item core.CatalogItem, outcome Outcome)
	RoundFinished(stats RoundStats)
	Finished(report *Report)
}

// noopObserver is a no-op implementation of Observer
type noopObserver struct{}

var _ Observer = noopObserver{}

func (noopObserver) Started(_ int)                               {}
func (noopObserver) ItemSucceeded(_ core.CatalogItem, _ Outcome) {}
func (noopObserver) RoundFinished(_ RoundStats)                  {}
func (noopObserver) Finished(_ *Report)                          {}

// observers fans hooks out to several observers in order.
type observers []Observer

var _ Observer = observers(nil)

func (o observers) Started(total int) {
	for _, obs := range o {
		obs.Started(total)
	}
}

func (o observers) ItemSucceeded(item core.CatalogItem, outcome Outcome) {
	for _, obs := range o {
		obs.ItemSucceeded(item, outcome)
	}
}

func (o observers) RoundFinished(stats RoundStats) {
	for _, obs := range o {
		obs.RoundFinished(stats)
	}
}

func (o observers) Finished(report *Report) {
	for _, obs := range o {
		obs.Finished(report)
	}
}
