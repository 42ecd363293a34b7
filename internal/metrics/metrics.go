// Package metrics exposes Prometheus collectors for conversion runs and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IamSmokeY/SnapBooks/internal/document"
	"github.com/IamSmokeY/SnapBooks/internal/pipeline"
)

const namespace = "snapbooks"

// Metrics owns a private registry holding every collector
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	steps       *prometheus.HistogramVec
	attempts    *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	messages    *prometheus.CounterVec
}

// New creates and registers every collector
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Conversion runs by document type and outcome.",
		}, []string{"document_type", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Wall time of conversion runs.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 20, 25, 30},
		}, []string{"document_type"}),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of each pipeline step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "skipped"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "attempts_total",
			Help:      "Extraction service attempts by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "updates_total",
			Help:      "Telegram updates handled by kind.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs, m.runDuration, m.steps, m.attempts, m.requests, m.latency, m.messages,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RunFinished(kind document.Kind, outcome string, d time.Duration) {
	m.runs.WithLabelValues(string(kind), outcome).Inc()
	m.runDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) StepFinished(step pipeline.State, skipped bool, d time.Duration) {
	m.steps.WithLabelValues(string(step), strconv.FormatBool(skipped)).Observe(d.Seconds())
}

func (m *Metrics) ExtractionAttempt(outcome string) {
	m.attempts.WithLabelValues(outcome).Inc()
}

// HTTPRequest records one served request. route is the mux pattern, not the raw path.
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

// TelegramUpdate counts a handled update (photo, command, callback)
func (m *Metrics) TelegramUpdate(kind string) {
	m.messages.WithLabelValues(kind).Inc()
}

var _ pipeline.Recorder = (*Metrics)(nil)
