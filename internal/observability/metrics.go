package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds the gateway-level Prometheus metrics for Cartrita.
// Uses a custom registry, no global state. Subsystem packages (scheduler,
// maintenance, agents) register their own families on the same Registry.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Workflow metrics.
	WorkflowExecutionsTotal   *prometheus.CounterVec
	WorkflowExecutionDuration *prometheus.HistogramVec

	// Integration metrics.
	IntegrationCallsTotal   *prometheus.CounterVec
	IntegrationCallDuration *prometheus.HistogramVec

	// Knowledge metrics.
	KnowledgeQueriesTotal   prometheus.Counter
	KnowledgeQueryDuration  prometheus.Histogram
	KnowledgeChunksSearched prometheus.Counter

	// Chat metrics.
	ChatMessagesTotal *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		WorkflowExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "workflow",
			Name:      "executions_total",
			Help:      "Total workflow executions by trigger and final status.",
		}, []string{"triggered_by", "status"}),

		WorkflowExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartrita",
			Subsystem: "workflow",
			Name:      "execution_duration_seconds",
			Help:      "Workflow execution duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"triggered_by"}),

		IntegrationCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "integration",
			Name:      "calls_total",
			Help:      "Total calls made through integrations.",
		}, []string{"service", "status"}),

		IntegrationCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartrita",
			Subsystem: "integration",
			Name:      "call_duration_seconds",
			Help:      "Integration call duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"service"}),

		KnowledgeQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "knowledge",
			Name:      "queries_total",
			Help:      "Total retrieval queries against the knowledge base.",
		}),

		KnowledgeQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cartrita",
			Subsystem: "knowledge",
			Name:      "query_duration_seconds",
			Help:      "Knowledge retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		KnowledgeChunksSearched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "knowledge",
			Name:      "chunks_returned_total",
			Help:      "Total chunks returned by retrieval queries.",
		}),

		ChatMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Total chat messages by role.",
		}, []string{"role"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cartrita",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cartrita",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cartrita",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	reg.MustRegister(
		m.WorkflowExecutionsTotal,
		m.WorkflowExecutionDuration,
		m.IntegrationCallsTotal,
		m.IntegrationCallDuration,
		m.KnowledgeQueriesTotal,
		m.KnowledgeQueryDuration,
		m.KnowledgeChunksSearched,
		m.ChatMessagesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}
