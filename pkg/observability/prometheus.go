package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "pipelinecheck"

// PrometheusHooks implements [AnalysisHooks], [CacheHooks] and [HTTPHooks]
// by recording Prometheus metrics. All methods are safe for concurrent use.
type PrometheusHooks struct {
	// AnalysesTotal counts finished analyses.
	// Labels: result (dag, cyclic, error)
	AnalysesTotal *prometheus.CounterVec

	// AnalysisDuration measures time spent analyzing a pipeline.
	AnalysisDuration prometheus.Histogram

	// PipelineNodes observes the node count of submitted pipelines.
	PipelineNodes prometheus.Histogram

	// PipelineEdges observes the edge count of submitted pipelines.
	PipelineEdges prometheus.Histogram

	// CacheOpsTotal counts cache operations.
	// Labels: key_type, op (hit, miss, set)
	CacheOpsTotal *prometheus.CounterVec

	// HTTPRequestsTotal counts handled requests.
	// Labels: method, route, status
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration measures request latency.
	// Labels: method, route
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPInFlight tracks requests currently being served.
	HTTPInFlight prometheus.Gauge
}

// NewPrometheusHooks creates the collectors and registers them with reg.
// Passing a fresh registry per server keeps tests independent of the
// process-wide default registry.
func NewPrometheusHooks(reg prometheus.Registerer) *PrometheusHooks {
	sizeBuckets := prometheus.ExponentialBuckets(1, 4, 10)
	h := &PrometheusHooks{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "analyses_total",
			Help:      "Pipelines analyzed, by outcome.",
		}, []string{"result"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent analyzing a pipeline.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		PipelineNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "pipeline_nodes",
			Help:      "Number of nodes in submitted pipelines.",
			Buckets:   sizeBuckets,
		}),
		PipelineEdges: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "pipeline_edges",
			Help:      "Number of edges in submitted pipelines.",
			Buckets:   sizeBuckets,
		}),
		CacheOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_operations_total",
			Help:      "Result cache operations, by key type and operation.",
		}, []string{"key_type", "op"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
	}
	reg.MustRegister(
		h.AnalysesTotal,
		h.AnalysisDuration,
		h.PipelineNodes,
		h.PipelineEdges,
		h.CacheOpsTotal,
		h.HTTPRequestsTotal,
		h.HTTPRequestDuration,
		h.HTTPInFlight,
	)
	return h
}

// OnAnalyzeStart records the size of the submitted pipeline.
func (h *PrometheusHooks) OnAnalyzeStart(_ context.Context, nodeCount, edgeCount int) {
	h.PipelineNodes.Observe(float64(nodeCount))
	h.PipelineEdges.Observe(float64(edgeCount))
}

// OnAnalyzeComplete records the outcome and duration of an analysis.
func (h *PrometheusHooks) OnAnalyzeComplete(_ context.Context, isDAG bool, d time.Duration, err error) {
	result := "dag"
	switch {
	case err != nil:
		result = "error"
	case !isDAG:
		result = "cyclic"
	}
	h.AnalysesTotal.WithLabelValues(result).Inc()
	h.AnalysisDuration.Observe(d.Seconds())
}

// OnCacheHit records a cache hit.
func (h *PrometheusHooks) OnCacheHit(_ context.Context, keyType string) {
	h.CacheOpsTotal.WithLabelValues(keyType, "hit").Inc()
}

// OnCacheMiss records a cache miss.
func (h *PrometheusHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.CacheOpsTotal.WithLabelValues(keyType, "miss").Inc()
}

// OnCacheSet records a cache write.
func (h *PrometheusHooks) OnCacheSet(_ context.Context, keyType string, _ int) {
	h.CacheOpsTotal.WithLabelValues(keyType, "set").Inc()
}

// OnRequest marks a request as in flight.
func (h *PrometheusHooks) OnRequest(context.Context, string, string) {
	h.HTTPInFlight.Inc()
}

// OnResponse records a finished request.
func (h *PrometheusHooks) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	h.HTTPInFlight.Dec()
	h.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	h.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

var (
	_ AnalysisHooks = (*PrometheusHooks)(nil)
	_ CacheHooks    = (*PrometheusHooks)(nil)
	_ HTTPHooks     = (*PrometheusHooks)(nil)
)
