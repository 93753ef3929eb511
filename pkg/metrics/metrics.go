package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openclaw_tasks_total",
			Help: "Total number of tasks by status",
		},
		[]string{"status"},
	)

	IterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openclaw_iterations_total",
			Help: "Total number of agent iterations executed",
		},
	)

	IterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openclaw_iteration_duration_seconds",
			Help:    "Agent iteration duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// Build metrics
	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openclaw_builds_total",
			Help: "Total number of image builds by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	BuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openclaw_build_duration_seconds",
			Help:    "Image build duration in seconds by kind",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"kind"},
	)

	// LLM gateway metrics
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openclaw_llm_requests_total",
			Help: "Total number of chat completion requests by provider and status",
		},
		[]string{"provider", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openclaw_llm_request_duration_seconds",
			Help:    "Chat completion latency in seconds by provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	SSEStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openclaw_sse_streams_total",
			Help: "Total number of SSE streams emitted by provider",
		},
		[]string{"provider"},
	)

	// Deployment metrics
	DeploymentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "openclaw_deployments_total",
			Help: "Total number of deployments by status",
		},
		[]string{"status"},
	)

	DeploymentStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openclaw_deployment_starts_total",
			Help: "Total number of deployment container starts",
		},
	)

	// Capability metrics
	CapabilityRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openclaw_capability_requests_total",
			Help: "Total number of capability requests by type",
		},
		[]string{"type"},
	)

	CapabilityDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openclaw_capability_decisions_total",
			Help: "Total number of capability decisions by outcome",
		},
		[]string{"outcome"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openclaw_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openclaw_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(IterationsTotal)
	prometheus.MustRegister(IterationDuration)
	prometheus.MustRegister(BuildsTotal)
	prometheus.MustRegister(BuildDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(SSEStreamsTotal)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentStartsTotal)
	prometheus.MustRegister(CapabilityRequestsTotal)
	prometheus.MustRegister(CapabilityDecisionsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds on the histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed seconds on a labeled histogram
func (t *Timer) ObserveDurationVec(vec *prometheus.HistogramVec, labels ...string) {
	vec.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
