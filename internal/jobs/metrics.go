// Package jobmetrics instruments the background worker.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	panels   *prometheus.CounterVec
	pruned   prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddWarmedPanels counts panels a warm-up run resolved, by entity kind and state.
func (m *Metrics) AddWarmedPanels(kind, state string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.panels.WithLabelValues(kind, state).Add(float64(count))
}

// AddPruned counts persisted selections removed by the prune job.
func (m *Metrics) AddPruned(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.pruned.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpay_insights_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpay_insights_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpay_insights_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"job"})
	panels := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpay_insights_warmup_panels_total",
		Help: "Dashboard panels resolved by the cache warm-up job.",
	}, []string{"kind", "state"})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rpay_insights_selections_pruned_total",
		Help: "Stale navigation selections deleted by the prune job.",
	})
	registerer.MustRegister(runs, failures, duration, panels, pruned)
	return &Metrics{runs: runs, failures: failures, duration: duration, panels: panels, pruned: pruned}
}
