package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for worker-executor metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	invocationsTotal *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	oplogAppendTotal prometheus.Counter
	replayRestarts   prometheus.Counter

	invocationDuration *prometheus.HistogramVec

	uptime prometheus.GaugeFunc
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of worker invocations",
			},
			[]string{"component", "status"},
		),

		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocation_retries_total",
				Help:      "Total number of invocation retries applied by the durability wrapper",
			},
			[]string{"component"},
		),

		oplogAppendTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oplog_entries_appended_total",
				Help:      "Total oplog entries appended across all workers",
			},
		),

		replayRestarts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replay_restarts_total",
				Help:      "Total number of worker replays started from the beginning of the oplog",
			},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Duration of worker invocations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"component"},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the worker executor started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.invocationsTotal,
		pm.retriesTotal,
		pm.oplogAppendTotal,
		pm.replayRestarts,
		pm.invocationDuration,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordPrometheusInvocation records an invocation in Prometheus collectors.
func RecordPrometheusInvocation(componentID string, durationMs int64, success bool, retries int) {
	if promMetrics == nil {
		return
	}
	status := "success"
	if !success {
		status = "trapped"
	}
	promMetrics.invocationsTotal.WithLabelValues(componentID, status).Inc()
	promMetrics.invocationDuration.WithLabelValues(componentID).Observe(float64(durationMs))
	if retries > 0 {
		promMetrics.retriesTotal.WithLabelValues(componentID).Add(float64(retries))
	}
}

// RecordPrometheusOplogAppend records a single oplog append.
func RecordPrometheusOplogAppend() {
	if promMetrics == nil {
		return
	}
	promMetrics.oplogAppendTotal.Inc()
}

// RecordPrometheusReplayRestart records a worker replay restart.
func RecordPrometheusReplayRestart() {
	if promMetrics == nil {
		return
	}
	promMetrics.replayRestarts.Inc()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors).
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
