package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/trogers1052/stock-signal-engine/internal/breaker"
)

// Recorder exports engine metrics to Prometheus
type Recorder struct {
	symbolsTotal  *prometheus.CounterVec
	storesTotal   *prometheus.CounterVec
	batchesTotal  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	realDataRatio prometheus.Gauge
	breakerState  *prometheus.GaugeVec
	jobRuns       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	jobDuration   *prometheus.HistogramVec
}

// New creates a recorder on the default registry
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder on reg
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		symbolsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_symbols_total",
				Help: "Symbols processed by result status",
			},
			[]string{"status"},
		),
		storesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_snapshot_stores_total",
				Help: "Snapshot store attempts by result",
			},
			[]string{"result"},
		),
		batchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_batches_total",
				Help: "Audited batches by quality recommendation",
			},
			[]string{"recommendation"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		realDataRatio: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "signal_engine_real_data_ratio",
				Help: "Real data ratio of the last audited batch",
			},
		),
		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signal_engine_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		jobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_engine_job_runs_total",
				Help: "Scheduled job runs by outcome",
			},
			[]string{"job", "outcome"},
		),
		batchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signal_engine_batch_duration_seconds",
				Help:    "Duration of batch recomputation in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_engine_job_duration_seconds",
				Help:    "Duration of scheduled jobs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
	}
}

// RecordSymbol counts one symbol's outcome
func (r *Recorder) RecordSymbol(status string) {
	r.symbolsTotal.WithLabelValues(status).Inc()
}

// RecordStore counts a store attempt
func (r *Recorder) RecordStore(result string) {
	r.storesTotal.WithLabelValues(result).Inc()
}

// RecordBatch records an audited batch
func (r *Recorder) RecordBatch(recommendation string, ratio float64, d time.Duration) {
	r.batchesTotal.WithLabelValues(recommendation).Inc()
	r.realDataRatio.Set(ratio)
	r.batchDuration.Observe(d.Seconds())
}

// RecordError records an error occurrence
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordBreakerState tracks a breaker transition. It matches
// breaker.StateObserver.
func (r *Recorder) RecordBreakerState(name, _, to string) {
	var v float64
	switch to {
	case breaker.StateHalfOpen:
		v = 1
	case breaker.StateOpen:
		v = 2
	}
	r.breakerState.WithLabelValues(name).Set(v)
}

// RecordJob records a scheduled job run
func (r *Recorder) RecordJob(job, outcome string, d time.Duration) {
	r.jobRuns.WithLabelValues(job, outcome).Inc()
	if d > 0 {
		r.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}
