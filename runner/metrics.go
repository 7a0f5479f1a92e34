package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects runner counters: runs by task name and outcome tag,
// capability refusals, and run durations.
type Metrics struct {
	runs     *prometheus.CounterVec
	refusals prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics builds the collectors and registers them with reg. A nil
// registerer leaves them unregistered, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskrow_runner_runs_total",
			Help: "Completed task runs by task name and outcome tag.",
		}, []string{"task", "outcome"}),
		refusals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskrow_runner_refusals_total",
			Help: "Submissions refused for missing capability grants.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskrow_runner_run_duration_seconds",
			Help:    "Wall-clock duration of task runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.refusals, m.duration)
	}
	return m
}

// Runs returns the run counter for one task/outcome pair, mostly for
// assertions.
func (m *Metrics) Runs(taskName, outcome string) prometheus.Counter {
	return m.runs.WithLabelValues(taskName, outcome)
}

// Refusals returns the refusal counter.
func (m *Metrics) Refusals() prometheus.Counter { return m.refusals }

func (m *Metrics) observe(taskName, outcome string, took time.Duration) {
	m.runs.WithLabelValues(taskName, outcome).Inc()
	m.duration.Observe(took.Seconds())
}
