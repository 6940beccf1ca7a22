package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes controller and scheduler activity to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	attemptsTotal *prometheus.CounterVec
	inFlight      prometheus.Gauge
	nextRun       prometheus.Gauge
}

// NewMetrics registers the uploader collectors on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_runs_total",
				Help:      "Claimed upload cycles by terminal row status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_run_duration_seconds",
				Help:      "Duration of claimed upload cycles",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"status"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_attempts_total",
				Help:      "Executor attempts by result",
			},
			[]string{"result"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upload_in_flight",
				Help:      "1 while an upload cycle is running",
			},
		),
		nextRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scheduler_next_run_timestamp_seconds",
				Help:      "Unix time of the next scheduled upload slot",
			},
		),
	}
	reg.MustRegister(m.runsTotal, m.runDuration, m.attemptsTotal, m.inFlight, m.nextRun)
	return m
}

func (m *Metrics) RecordRun(status RowStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

func (m *Metrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetInFlight(running bool) {
	if m == nil {
		return
	}
	if running {
		m.inFlight.Set(1)
		return
	}
	m.inFlight.Set(0)
}

func (m *Metrics) SetNextRun(t time.Time) {
	if m == nil {
		return
	}
	m.nextRun.Set(float64(t.Unix()))
}
