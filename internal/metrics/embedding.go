package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedx",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"backend", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "embedx",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend", "model"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedx",
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors",
		},
		[]string{"backend", "model", "error_type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedx",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"backend", "result"}, // "hit" / "miss"
	)

	FallbackTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "embedx",
			Name:      "fallback_transitions_total",
			Help:      "Backend transitions by trigger",
		},
		[]string{"from", "to", "trigger"}, // trigger: init_failure, runtime_error, switch
	)

	ActiveBackend = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "embedx",
			Name:      "active_backend",
			Help:      "1 for the currently active embedding backend",
		},
		[]string{"backend"},
	)
)

var embMetricsRegistered bool

// RegisterEmbeddingMetrics registers Prometheus embedding metrics. Must be called once from main.
func RegisterEmbeddingMetrics() {
	if embMetricsRegistered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingErrorsTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(FallbackTransitionsTotal)
	prometheus.MustRegister(ActiveBackend)
	embMetricsRegistered = true
}
