package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Metrics holds the background job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	items       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics registers the job collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_jobs_total",
			Help: "Job runs by task type and outcome.",
		}, []string{"task", "outcome"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_job_items_total",
			Help: "Rows a job touched: medicines flagged, keys removed, reports built.",
		}, []string{"task"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meridian_job_duration_seconds",
			Help:    "Job run duration.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 180},
		}, []string{"task"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meridian_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per task.",
		}, []string{"task"}),
	}
	registerer.MustRegister(m.runs, m.items, m.duration, m.lastSuccess)
	return m
}

// Run is one in-progress job execution.
type Run struct {
	metrics *Metrics
	job     string
	start   time.Time
	items   int
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Run {
	return &Run{metrics: m, job: job, start: time.Now()}
}

// Items records how many rows the run touched.
func (r *Run) Items(n int) {
	if r != nil {
		r.items = n
	}
}

// End records the run and returns err unchanged.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	m := r.metrics
	m.duration.WithLabelValues(r.job).Observe(time.Since(r.start).Seconds())
	if err != nil {
		m.runs.WithLabelValues(r.job, outcomeFailed).Inc()
		return err
	}
	m.runs.WithLabelValues(r.job, outcomeOK).Inc()
	m.items.WithLabelValues(r.job).Add(float64(r.items))
	m.lastSuccess.WithLabelValues(r.job).SetToCurrentTime()
	return nil
}
