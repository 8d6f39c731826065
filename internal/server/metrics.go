package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ragweaver/ragweaver/internal/rag"
)

// metrics holds the query instrumentation exposed under /metrics.
type metrics struct {
	registry  *prometheus.Registry
	queries   *prometheus.CounterVec
	duration  prometheus.Histogram
	retrieved prometheus.Histogram
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(registry)
	return &metrics{
		registry: registry,
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ragweaver_queries_total",
			Help: "Queries answered, labeled by intent and cache outcome.",
		}, []string{"intent", "cache"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragweaver_query_duration_seconds",
			Help:    "End-to-end query latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		retrieved: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragweaver_retrieved_docs",
			Help:    "Documents retrieved per query before re-ranking.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

func (m *metrics) observe(rec *rag.RunRecord) {
	cache := "miss"
	if rec.FromCache {
		cache = "hit"
	}
	m.queries.WithLabelValues(string(rec.Intent), cache).Inc()
	m.duration.Observe(rec.ElapsedSec)
	m.retrieved.Observe(float64(rec.Retrieved))
}
