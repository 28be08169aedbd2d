// Package metrics records migration counters and writes them in the Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pgmigrate"

// Recorder collects the metrics of one run. A nil *Recorder records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	rows        *prometheus.CounterVec
	blobs       *prometheus.CounterVec
	constraints *prometheus.CounterVec
	duration    *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_copied_total",
			Help:      "Rows streamed into target tables through the bulk-load channel.",
		}, []string{"table"}),
		blobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_rows_backfilled_total",
			Help:      "Rows whose binary columns were populated by the backfill pass.",
		}, []string{"table"}),
		constraints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "constraint_statements_total",
			Help:      "Foreign key DDL statements executed on the target.",
		}, []string{"phase"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "table_phase_duration_seconds",
			Help:      "Wall time spent per table and phase.",
		}, []string{"table", "phase"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful migration run.",
		}),
	}
	r.registry.MustRegister(r.rows, r.blobs, r.constraints, r.duration, r.lastSuccess)
	return r
}

func (r *Recorder) RowCopied(table string) {
	if r == nil {
		return
	}
	r.rows.WithLabelValues(table).Inc()
}

func (r *Recorder) BlobRowBackfilled(table string) {
	if r == nil {
		return
	}
	r.blobs.WithLabelValues(table).Inc()
}

func (r *Recorder) ConstraintStatement(phase string) {
	if r == nil {
		return
	}
	r.constraints.WithLabelValues(phase).Inc()
}

func (r *Recorder) PhaseDuration(table, phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.duration.WithLabelValues(table, phase).Set(d.Seconds())
}

func (r *Recorder) Succeeded(at time.Time) {
	if r == nil {
		return
	}
	r.lastSuccess.Set(float64(at.Unix()))
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes all metrics to path atomically, for the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
