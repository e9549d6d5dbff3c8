package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Import outcomes used as label values.
const (
	ImportOutcomeSucceeded = "succeeded"
	ImportOutcomeFailed    = "failed"
	ImportOutcomeRetried   = "retried"
	ImportOutcomeDeferred  = "deferred"
)

// ImportMetrics tracks feed import runs.
type ImportMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	skipped  prometheus.Counter
	listings prometheus.Counter
	inflight prometheus.Gauge
}

// NewImportMetrics registers import metrics; a nil registerer yields no-ops.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	if reg == nil {
		return &ImportMetrics{}
	}
	m := &ImportMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of feed imports, fetch included.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_tasks_total",
			Help:      "Import task attempts by outcome.",
		}, []string{"outcome"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_items_skipped_total",
			Help:      "Feed items skipped because they failed validation or insert.",
		}),
		listings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_listings_created_total",
			Help:      "Listings written by committed imports.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "import_inflight",
			Help:      "Imports currently running in this process.",
		}),
	}
	reg.MustRegister(m.duration, m.outcomes, m.skipped, m.listings, m.inflight)
	return m
}

// Observe records one finished attempt.
func (m *ImportMetrics) Observe(outcome string, took time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.duration.WithLabelValues(outcome).Observe(took.Seconds())
	m.outcomes.WithLabelValues(outcome).Inc()
}

// AddSkipped counts skipped feed items.
func (m *ImportMetrics) AddSkipped(n int) {
	if m == nil || m.skipped == nil || n <= 0 {
		return
	}
	m.skipped.Add(float64(n))
}

// AddListings counts listings created by a committed import.
func (m *ImportMetrics) AddListings(n int) {
	if m == nil || m.listings == nil || n <= 0 {
		return
	}
	m.listings.Add(float64(n))
}

// Started marks an import as running and returns the matching release func.
func (m *ImportMetrics) Started() func() {
	if m == nil || m.inflight == nil {
		return func() {}
	}
	m.inflight.Inc()
	return m.inflight.Dec
}
