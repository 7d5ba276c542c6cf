// Package metrics exposes Prometheus instrumentation for the engine,
// trimmed from the teacher's PrometheusMetrics (pkg/metrics/prometheus.go)
// down to the dimensions an ANN index actually has: graph/cluster size,
// per-operation latency, and worker-pool utilization, dropping the
// RAG/node/network fields that had no home in this domain.
package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the engine's Prometheus instrumentation surface.
type Metrics struct {
	GraphNodesTotal   prometheus.Gauge
	GraphDeletedTotal prometheus.Gauge
	ClustersTotal     prometheus.Gauge
	ClusterSizeAvg    prometheus.Gauge

	SearchLatency      *prometheus.HistogramVec
	InsertLatency      *prometheus.HistogramVec
	DeleteLatency      *prometheus.HistogramVec
	ConsolidateLatency *prometheus.HistogramVec
	CompactLatency     *prometheus.HistogramVec

	OperationsTotal *prometheus.CounterVec
	OperationErrors *prometheus.CounterVec

	WorkerPoolUtilization *prometheus.GaugeVec

	logger *slog.Logger
}

// New creates and registers a fresh Metrics instance against the
// default Prometheus registry, mirroring the teacher's
// NewPrometheusMetrics(logger) constructor shape.
func New(logger *slog.Logger) *Metrics {
	latencyBuckets := prometheus.DefBuckets

	return &Metrics{
		GraphNodesTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "svs_graph_nodes_total",
			Help: "Total number of node slots in the Vamana graph, including deleted.",
		}),
		GraphDeletedTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "svs_graph_deleted_total",
			Help: "Number of soft-deleted (not yet consolidated) graph nodes.",
		}),
		ClustersTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "svs_ivf_clusters_total",
			Help: "Number of clusters in the IVF index.",
		}),
		ClusterSizeAvg: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "svs_ivf_cluster_size_avg",
			Help: "Average member count across IVF clusters.",
		}),
		SearchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "svs_search_latency_seconds",
			Help:    "Latency of k-NN and range search calls.",
			Buckets: latencyBuckets,
		}, []string{"index_kind"}),
		InsertLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "svs_insert_latency_seconds",
			Help:    "Latency of add calls.",
			Buckets: latencyBuckets,
		}, []string{"index_kind"}),
		DeleteLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "svs_delete_latency_seconds",
			Help:    "Latency of remove/remove_selected calls.",
			Buckets: latencyBuckets,
		}, []string{"index_kind"}),
		ConsolidateLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "svs_consolidate_latency_seconds",
			Help:    "Latency of Vamana consolidate calls.",
			Buckets: latencyBuckets,
		}, []string{"index_kind"}),
		CompactLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "svs_compact_latency_seconds",
			Help:    "Latency of compact calls.",
			Buckets: latencyBuckets,
		}, []string{"index_kind"}),
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "svs_operations_total",
			Help: "Count of engine operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		OperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "svs_operation_errors_total",
			Help: "Count of engine operation failures by operation (the code label is always error).",
		}, []string{"operation", "code"}),
		WorkerPoolUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "svs_worker_pool_utilization",
			Help: "Fraction of a worker pool's workers currently busy.",
		}, []string{"pool"}),
		logger: logger,
	}
}

// ObserveOperation records latency and outcome for one engine call.
func (m *Metrics) ObserveOperation(operation, indexKind string, latency time.Duration, err error) {
	m.OperationsTotal.WithLabelValues(operation, outcome(err)).Inc()
	if err != nil {
		m.OperationErrors.WithLabelValues(operation, "error").Inc()
	}
	switch operation {
	case "search", "range_search":
		m.SearchLatency.WithLabelValues(indexKind).Observe(latency.Seconds())
	case "add":
		m.InsertLatency.WithLabelValues(indexKind).Observe(latency.Seconds())
	case "remove", "remove_selected":
		m.DeleteLatency.WithLabelValues(indexKind).Observe(latency.Seconds())
	case "consolidate":
		m.ConsolidateLatency.WithLabelValues(indexKind).Observe(latency.Seconds())
	case "compact":
		m.CompactLatency.WithLabelValues(indexKind).Observe(latency.Seconds())
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// SetGraphSize updates the Vamana graph size gauges.
func (m *Metrics) SetGraphSize(nodes, deleted int) {
	m.GraphNodesTotal.Set(float64(nodes))
	m.GraphDeletedTotal.Set(float64(deleted))
}

// SetClusterStats updates the IVF cluster gauges.
func (m *Metrics) SetClusterStats(clusters int, avgSize float64) {
	m.ClustersTotal.Set(float64(clusters))
	m.ClusterSizeAvg.Set(avgSize)
}

// SetWorkerUtilization records how busy a named worker pool currently is.
func (m *Metrics) SetWorkerUtilization(pool string, fraction float64) {
	m.WorkerPoolUtilization.WithLabelValues(pool).Set(fraction)
}
