// Package observability records task and HTTP metrics with Prometheus.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/delegate/internal/agent"
)

const namespace = "delegate"

// Metrics implements agent.Recorder and records HTTP traffic.
type Metrics struct {
	admitted prometheus.Counter
	rejected *prometheus.CounterVec
	started  prometheus.Counter
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ agent.Recorder = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "admitted_total",
			Help:      "Tasks admitted by the orchestrator.",
		}),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "rejected_total",
				Help:      "Spawn requests rejected at admission.",
			},
			[]string{"code"},
		),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "started_total",
			Help:      "Tasks handed to the executor.",
		}),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "finished_total",
				Help:      "Tasks that left the running state.",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "run_duration_seconds",
				Help:      "Time from start to terminal state in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "running",
			Help:      "Tasks currently running.",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.admitted, m.rejected, m.started, m.finished, m.duration, m.running,
		m.httpRequests, m.httpDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// TaskAdmitted implements agent.Recorder.
func (m *Metrics) TaskAdmitted() {
	m.admitted.Inc()
}

// TaskRejected implements agent.Recorder.
func (m *Metrics) TaskRejected(code agent.ErrorCode) {
	m.rejected.WithLabelValues(string(code)).Inc()
}

// TaskStarted implements agent.Recorder.
func (m *Metrics) TaskStarted(running int) {
	m.started.Inc()
	m.running.Set(float64(running))
}

// TaskFinished implements agent.Recorder.
func (m *Metrics) TaskFinished(status agent.Status, ran time.Duration, running int) {
	m.finished.WithLabelValues(string(status)).Inc()
	m.duration.WithLabelValues(string(status)).Observe(ran.Seconds())
	m.running.Set(float64(running))
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
