// Package observability exposes prometheus metrics for the retrieval and
// indexing engine.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	searchDuration *prometheus.HistogramVec
	searchTotal    *prometheus.CounterVec
	writeDuration  prometheus.Histogram

	embeddingBatchTotal  prometheus.Counter
	embeddingInputsTotal prometheus.Counter

	indexSyncDuration  prometheus.Histogram
	indexedChunksTotal prometheus.Gauge
	memoryDocsTotal    prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			searchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Search duration in seconds by mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			searchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_search_total",
					Help: "Total searches by mode and outcome.",
				},
				[]string{"mode", "outcome"},
			),
			writeDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_write_duration_seconds",
					Help:    "Memory document write duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			embeddingBatchTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "embedding_batches_total",
					Help: "Total embedding batches sent upstream.",
				},
			),
			embeddingInputsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "embedding_inputs_total",
					Help: "Total texts embedded.",
				},
			),
			indexSyncDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "codeindex_sync_duration_seconds",
					Help:    "Codebase index sync duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			indexedChunksTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "codeindex_chunks_total",
					Help: "Code chunks currently indexed.",
				},
			),
			memoryDocsTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_documents_total",
					Help: "Memory documents currently stored.",
				},
			),
		}

		prometheus.MustRegister(
			m.searchDuration, m.searchTotal, m.writeDuration,
			m.embeddingBatchTotal, m.embeddingInputsTotal,
			m.indexSyncDuration, m.indexedChunksTotal, m.memoryDocsTotal,
		)
		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSearch(mode string, duration time.Duration, success bool) {
	m := getMetrics()
	outcome := "error"
	if success {
		outcome = "success"
	}
	m.searchDuration.WithLabelValues(mode).Observe(duration.Seconds())
	m.searchTotal.WithLabelValues(mode, outcome).Inc()
}

func RecordMemoryWrite(duration time.Duration) {
	getMetrics().writeDuration.Observe(duration.Seconds())
}

func RecordEmbeddingBatch(inputs int) {
	m := getMetrics()
	m.embeddingBatchTotal.Inc()
	m.embeddingInputsTotal.Add(float64(inputs))
}

func RecordIndexSync(duration time.Duration) {
	getMetrics().indexSyncDuration.Observe(duration.Seconds())
}

func SetIndexedChunks(total int) {
	getMetrics().indexedChunksTotal.Set(float64(total))
}

func SetMemoryDocuments(total int) {
	getMetrics().memoryDocsTotal.Set(float64(total))
}
