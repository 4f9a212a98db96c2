package workers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics returns the current pool metrics.
func (p *WorkerPool) Metrics() PoolMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// Metrics is the Prometheus view of a pool. A nil *Metrics records nothing.
type Metrics struct {
	submittedTotal *prometheus.CounterVec
	tasksTotal     *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	running        prometheus.Gauge
}

// InitPrometheusMetrics registers the pool collectors on reg, or on the
// default registerer when reg is nil.
func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		submittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_tasks_submitted_total",
				Help:      "Tasks accepted by the worker pool",
			},
			[]string{"type"},
		),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_tasks_total",
				Help:      "Tasks finished by the worker pool",
			},
			[]string{"type", "outcome"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_task_duration_seconds",
				Help:      "Duration of worker pool tasks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Tasks waiting for a worker",
			},
		),
		running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_tasks_running",
				Help:      "Tasks currently executing",
			},
		),
	}

	reg.MustRegister(m.submittedTotal, m.tasksTotal, m.taskDuration, m.queueDepth, m.running)
	return m
}

func (m *Metrics) submitted(taskType string) {
	if m == nil {
		return
	}
	m.submittedTotal.WithLabelValues(taskType).Inc()
}

func (m *Metrics) finished(taskType string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.tasksTotal.WithLabelValues(taskType, outcome).Inc()
	m.taskDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) addRunning(delta float64) {
	if m == nil {
		return
	}
	m.running.Add(delta)
}
