package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchDuration *prometheus.HistogramVec
	fetchesTotal  *prometheus.CounterVec
	filesTotal    *prometheus.CounterVec
	cacheTotal    *prometheus.CounterVec
	snapshotRows  *prometheus.GaugeVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalview_fetch_duration_seconds",
				Help:    "Duration of snapshot fetches in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
			},
			[]string{"source"},
		),
		fetchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalview_fetches_total",
				Help: "Snapshot fetches by outcome",
			},
			[]string{"source", "outcome"},
		),
		filesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalview_files_total",
				Help: "Listed data files by fetch outcome (read, skipped, pruned, unvisited)",
			},
			[]string{"source", "status"},
		),
		cacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalview_cache_requests_total",
				Help: "Snapshot cache lookups by result",
			},
			[]string{"result"},
		),
		snapshotRows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalview_snapshot_rows",
				Help: "Rows in the last computed snapshot",
			},
			[]string{"source"},
		),
	}
}

// RecordFetch records one fetch and its latency.
func (r *Recorder) RecordFetch(source, outcome string, seconds float64) {
	r.fetchesTotal.WithLabelValues(source, outcome).Inc()
	r.fetchDuration.WithLabelValues(source).Observe(seconds)
}

// RecordFileOutcome counts one listed file by status.
func (r *Recorder) RecordFileOutcome(source, status string) {
	r.filesTotal.WithLabelValues(source, status).Inc()
}

// RecordCache counts one cache lookup.
func (r *Recorder) RecordCache(result string) {
	r.cacheTotal.WithLabelValues(result).Inc()
}

// RecordSnapshotRows sets the size of the latest snapshot.
func (r *Recorder) RecordSnapshotRows(source string, rows int) {
	r.snapshotRows.WithLabelValues(source).Set(float64(rows))
}
