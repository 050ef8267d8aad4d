// Package jobmetrics instruments background task runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded on clientdoc_jobs_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers job collectors on registerer, or once on the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clientdoc_jobs_total",
			Help: "Background task runs by task type and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clientdoc_jobs_failures_total",
			Help: "Background task runs that returned an error.",
		}, []string{"job"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clientdoc_jobs_skipped_total",
			Help: "Task deliveries dropped before running, by reason.",
		}, []string{"job", "reason"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clientdoc_jobs_in_flight",
			Help: "Task runs currently executing.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clientdoc_job_duration_seconds",
			Help:    "Wall time of background task runs.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.skipped, m.inFlight, m.duration)
	return m
}

// Tracker measures one run; obtain it with Track and close it with End.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track marks a run of job as started.
func (m *Metrics) Track(job string) *Tracker {
	if m != nil {
		m.inFlight.WithLabelValues(job).Inc()
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of the run and passes err through.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	m := t.metrics
	m.inFlight.WithLabelValues(t.job).Dec()
	m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, OutcomeFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, OutcomeSuccess).Inc()
	return nil
}

// Skip counts a delivery that never ran, such as one whose upload lock is held elsewhere.
func (m *Metrics) Skip(job, reason string) {
	if m != nil {
		m.skipped.WithLabelValues(job, reason).Inc()
	}
}
