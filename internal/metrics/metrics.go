package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for clientdesk
type Metrics struct {
	// Email counters
	EmailsSentTotal   *prometheus.CounterVec
	EmailsFailedTotal *prometheus.CounterVec

	// Dispatch runs
	DispatchRunsTotal          *prometheus.CounterVec
	DispatchRunDurationSeconds prometheus.Histogram
	DispatchRunsActive         prometheus.Gauge

	// Template generation
	GenerationRequestsTotal   *prometheus.CounterVec
	GenerationDurationSeconds prometheus.Histogram

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientdesk_emails_sent_total",
				Help: "Total number of emails accepted by the provider",
			},
			[]string{"provider"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientdesk_emails_failed_total",
				Help: "Total number of emails the provider rejected",
			},
			[]string{"provider"},
		),

		DispatchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientdesk_dispatch_runs_total",
				Help: "Total number of finished bulk dispatch runs",
			},
			[]string{"outcome"},
		),
		DispatchRunDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clientdesk_dispatch_run_duration_seconds",
				Help:    "Bulk dispatch run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		DispatchRunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clientdesk_dispatch_runs_active",
				Help: "Number of bulk dispatch runs in progress",
			},
		),

		GenerationRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientdesk_generation_requests_total",
				Help: "Total number of template generation requests",
			},
			[]string{"status"},
		),
		GenerationDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clientdesk_generation_duration_seconds",
				Help:    "Template generation duration in seconds",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 60},
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientdesk_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clientdesk_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientdesk_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clientdesk_ratelimit_exceeded_total",
				Help: "Total number of rate limit exceeded events",
			},
			[]string{"level"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clientdesk_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clientdesk_storage_used_bytes",
				Help: "Database size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.DispatchRunsTotal,
		m.DispatchRunDurationSeconds,
		m.DispatchRunsActive,
		m.GenerationRequestsTotal,
		m.GenerationDurationSeconds,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.RateLimitExceededTotal,
		m.UptimeSeconds,
		m.StorageUsedBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncEmailsSent increments the sent email counter
func IncEmailsSent(provider string) {
	if m := Global(); m != nil {
		m.EmailsSentTotal.WithLabelValues(provider).Inc()
	}
}

// IncEmailsFailed increments the failed email counter
func IncEmailsFailed(provider string) {
	if m := Global(); m != nil {
		m.EmailsFailedTotal.WithLabelValues(provider).Inc()
	}
}

// RunStarted marks a dispatch run as active
func RunStarted() {
	if m := Global(); m != nil {
		m.DispatchRunsActive.Inc()
	}
}

// RunFinished records a finished dispatch run
func RunFinished(outcome string, seconds float64) {
	if m := Global(); m != nil {
		m.DispatchRunsActive.Dec()
		m.DispatchRunsTotal.WithLabelValues(outcome).Inc()
		m.DispatchRunDurationSeconds.Observe(seconds)
	}
}

// ObserveGeneration records a template generation request
func ObserveGeneration(status string, seconds float64) {
	if m := Global(); m != nil {
		m.GenerationRequestsTotal.WithLabelValues(status).Inc()
		m.GenerationDurationSeconds.Observe(seconds)
	}
}

// IncRateLimitExceeded increments rate limit exceeded counter
func IncRateLimitExceeded(level string) {
	if m := Global(); m != nil {
		m.RateLimitExceededTotal.WithLabelValues(level).Inc()
	}
}
