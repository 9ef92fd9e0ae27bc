package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	stepDurationBuckets = []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 1800, 3600}
)

// Metrics holds all Prometheus metric instruments for the orchestration
// core.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Instance metrics
	InstanceTransitionsTotal *prometheus.CounterVec
	InstancesActive          prometheus.Gauge
	InstanceProgress         prometheus.Histogram

	// Step metrics
	StepTransitionsTotal *prometheus.CounterVec
	StepDuration         *prometheus.HistogramVec
	StepRetriesTotal     prometheus.Counter

	// Event bus metrics
	EventsPublishedTotal *prometheus.CounterVec

	// Ledger metrics
	HistoryAppendsTotal *prometheus.CounterVec

	// Catalog metrics
	DefinitionsLoaded prometheus.Gauge
}

// InitMetrics registers all metric instruments with the given registerer
// and returns the Metrics handle.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procflow_http_requests_total",
			Help: "Total HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procflow_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method.",
			Buckets: httpDurationBuckets,
		}, []string{"route", "method"}),

		InstanceTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procflow_instance_transitions_total",
			Help: "Instance lifecycle transitions by event type.",
		}, []string{"event"}),
		InstancesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procflow_instances_active",
			Help: "Instances currently in running or paused status.",
		}),
		InstanceProgress: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "procflow_instance_progress_percent",
			Help:    "Progress percentage observed at instance transitions.",
			Buckets: []float64{0, 10, 25, 50, 75, 90, 100},
		}),

		StepTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procflow_step_transitions_total",
			Help: "Step lifecycle transitions by event type.",
		}, []string{"event"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "procflow_step_duration_seconds",
			Help:    "Completed step durations by step kind.",
			Buckets: stepDurationBuckets,
		}, []string{"kind"}),
		StepRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procflow_step_retries_total",
			Help: "Total step retries.",
		}),

		EventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procflow_events_published_total",
			Help: "Events published to the in-process bus by topic.",
		}, []string{"topic"}),

		HistoryAppendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procflow_history_appends_total",
			Help: "History ledger appends by event type and severity.",
		}, []string{"event", "severity"}),

		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "procflow_definitions_loaded",
			Help: "Definitions registered in the catalog.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.InstanceTransitionsTotal,
		m.InstancesActive,
		m.InstanceProgress,
		m.StepTransitionsTotal,
		m.StepDuration,
		m.StepRetriesTotal,
		m.EventsPublishedTotal,
		m.HistoryAppendsTotal,
		m.DefinitionsLoaded,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
