package cron

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes scheduler activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	inFlight         prometheus.Gauge
	jobs             prometheus.Gauge
	followupRemovals *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
}

// InitPrometheusMetrics registers the scheduler collectors on reg, or on the
// default registerer when reg is nil.
func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_runs_total",
				Help:      "Total number of cron job executions",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cron_run_duration_seconds",
				Help:      "Duration of cron job executions",
				Buckets:   []float64{.01, .1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"payload"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cron_jobs_in_flight",
				Help:      "Number of cron jobs currently executing",
			},
		),
		jobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cron_jobs",
				Help:      "Number of stored cron jobs",
			},
		),
		followupRemovals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_followup_removals_total",
				Help:      "Followup jobs removed by the executor",
			},
			[]string{"reason"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_deliveries_total",
				Help:      "Delivery attempts by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
	}

	reg.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.inFlight,
		m.jobs,
		m.followupRemovals,
		m.deliveriesTotal,
	)

	return m
}

func (m *Metrics) recordRun(kind PayloadKind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) setInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

func (m *Metrics) setJobs(n int) {
	if m == nil {
		return
	}
	m.jobs.Set(float64(n))
}

func (m *Metrics) followupRemoved(reason string) {
	if m == nil {
		return
	}
	m.followupRemovals.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordDelivery(mode DeliveryMode, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.deliveriesTotal.WithLabelValues(string(mode), outcome).Inc()
}
