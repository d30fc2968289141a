package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/poiesic/ragsync/core"
)

// Metrics holds Prometheus metrics for sync runs. It is an Observer; pass
// it to WithObserver.
//
// Metrics:
//   - ragsync_sync_runs_total{result} - Count of finished runs
//   - ragsync_sync_rounds_total - Count of rounds started
//   - ragsync_sync_items_total{result} - Per-item outcomes
//   - ragsync_sync_round_duration_seconds - Histogram of round durations
//   - ragsync_sync_pending_items - Pending set size after the last round
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	RoundsTotal   prometheus.Counter
	ItemsTotal    *prometheus.CounterVec
	RoundDuration prometheus.Histogram
	PendingItems  prometheus.Gauge
}

var _ Observer = (*Metrics)(nil)

// NewMetrics creates sync metrics and registers them with reg.
// A nil reg creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragsync_sync_runs_total",
				Help: "Total number of finished sync runs",
			},
			[]string{"result"}, // "drained", "partial", "cancelled"
		),
		RoundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ragsync_sync_rounds_total",
			Help: "Total number of sync rounds run",
		}),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragsync_sync_items_total",
				Help: "Total number of item attempts by result",
			},
			[]string{"result"}, // "ingested", "unchanged", "failed", "skipped"
		),
		RoundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragsync_sync_round_duration_seconds",
			Help:    "Duration of sync rounds in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		PendingItems: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ragsync_sync_pending_items",
			Help: "Items still pending after the most recent round",
		}),
	}
}

func (m *Metrics) Started(total int) {
	m.PendingItems.Set(float64(total))
}

func (m *Metrics) ItemSucceeded(_ core.CatalogItem, outcome Outcome) {
	if outcome == OutcomeUnchanged {
		m.ItemsTotal.WithLabelValues("unchanged").Inc()
		return
	}
	m.ItemsTotal.WithLabelValues("ingested").Inc()
}

func (m *Metrics) RoundFinished(stats RoundStats) {
	m.RoundsTotal.Inc()
	m.RoundDuration.Observe(stats.Duration.Seconds())
	m.ItemsTotal.WithLabelValues("failed").Add(float64(stats.Failed))
	m.ItemsTotal.WithLabelValues("skipped").Add(float64(stats.Skipped))
	m.PendingItems.Set(float64(stats.Remaining))
}

func (m *Metrics) Finished(report *Report) {
	m.RunsTotal.WithLabelValues(report.Result()).Inc()
}
