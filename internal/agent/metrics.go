package agent

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics keeps the agent counters in atomics and exports them through a
// private prometheus registry.
type Metrics struct {
	StartedAt time.Time

	jobsReceived      atomic.Int64
	jobsCompleted     atomic.Int64
	jobsFailed        atomic.Int64
	jobsExpired       atomic.Int64
	reconnections     atomic.Int64
	pendingJobsSynced atomic.Int64
	queueDepth        atomic.Int64

	registry *prometheus.Registry
}

type Snapshot struct {
	StartedAt         time.Time
	Uptime            time.Duration
	JobsReceived      int64
	JobsCompleted     int64
	JobsFailed        int64
	JobsExpired       int64
	Reconnections     int64
	PendingJobsSynced int64
	QueueDepth        int64
	SuccessRate       float64
}

func NewMetrics() *Metrics {
	m := &Metrics{
		StartedAt: time.Now(),
		registry:  prometheus.NewRegistry(),
	}

	counter := func(name, help string, value *atomic.Int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "print_agent", Name: name, Help: help,
		}, func() float64 { return float64(value.Load()) })
	}

	m.registry.MustRegister(
		counter("jobs_received_total", "Jobs received from the backend.", &m.jobsReceived),
		counter("jobs_completed_total", "Jobs printed successfully.", &m.jobsCompleted),
		counter("jobs_failed_total", "Jobs that exhausted their retries.", &m.jobsFailed),
		counter("jobs_expired_total", "Jobs expired by TTL.", &m.jobsExpired),
		counter("reconnections_total", "Successful backend reconnections.", &m.reconnections),
		counter("pending_jobs_synced_total", "Jobs recovered via pending-job resync.", &m.pendingJobsSynced),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "print_agent", Name: "queue_depth", Help: "Queued plus processing entries.",
		}, func() float64 { return float64(m.queueDepth.Load()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "print_agent", Name: "success_rate", Help: "completed / (completed + failed).",
		}, func() float64 { return m.successRate() }),
	)
	return m
}

func (m *Metrics) JobReceived()  { m.jobsReceived.Add(1) }
func (m *Metrics) JobCompleted() { m.jobsCompleted.Add(1) }
func (m *Metrics) JobFailed()    { m.jobsFailed.Add(1) }
func (m *Metrics) JobExpired()   { m.jobsExpired.Add(1) }
func (m *Metrics) Reconnected()  { m.reconnections.Add(1) }
func (m *Metrics) PendingSynced(n int) {
	m.pendingJobsSynced.Add(int64(n))
}
func (m *Metrics) SetQueueDepth(n int) { m.queueDepth.Store(int64(n)) }

func (m *Metrics) successRate() float64 {
	completed := m.jobsCompleted.Load()
	failed := m.jobsFailed.Load()
	if completed+failed == 0 {
		return 1
	}
	return float64(completed) / float64(completed+failed)
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		StartedAt:         m.StartedAt,
		Uptime:            time.Since(m.StartedAt),
		JobsReceived:      m.jobsReceived.Load(),
		JobsCompleted:     m.jobsCompleted.Load(),
		JobsFailed:        m.jobsFailed.Load(),
		JobsExpired:       m.jobsExpired.Load(),
		Reconnections:     m.reconnections.Load(),
		PendingJobsSynced: m.pendingJobsSynced.Load(),
		QueueDepth:        m.queueDepth.Load(),
		SuccessRate:       m.successRate(),
	}
}

// Handler serves the private registry, for the optional localhost listener.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
