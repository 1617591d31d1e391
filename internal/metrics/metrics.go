package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeMetricsOnce     sync.Once
	storeMetricsInstance *StoreMetrics
)

// StoreMetrics holds the Prometheus metrics for the storage core.
type StoreMetrics struct {
	ChunkWritesTotal     *prometheus.CounterVec   // shardstore_chunk_writes_total{outcome}
	ReplicaWriteDuration *prometheus.HistogramVec // shardstore_replica_write_duration_seconds{outcome}
	BytesStored          prometheus.Counter       // shardstore_bytes_stored_total
	ReducedDurability    prometheus.Counter       // shardstore_reduced_durability_writes_total
	VerificationsTotal   *prometheus.CounterVec   // shardstore_chunk_verifications_total{result}
	AssembliesTotal      *prometheus.CounterVec   // shardstore_file_assemblies_total{outcome}
}

// InitStoreMetrics initializes the metrics. Registration happens once;
// later calls return the same instance.
func InitStoreMetrics(registry prometheus.Registerer) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		storeMetricsInstance = &StoreMetrics{
			ChunkWritesTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "shardstore_chunk_writes_total",
				Help: "Chunk replica writes by outcome",
			}, []string{"outcome"}),

			ReplicaWriteDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
				Name:    "shardstore_replica_write_duration_seconds",
				Help:    "Replica write duration in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"outcome"}),

			BytesStored: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "shardstore_bytes_stored_total",
				Help: "Total bytes written to completed replicas",
			}),

			ReducedDurability: promauto.With(registry).NewCounter(prometheus.CounterOpts{
				Name: "shardstore_reduced_durability_writes_total",
				Help: "Chunk writes that completed with fewer replicas than requested",
			}),

			VerificationsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "shardstore_chunk_verifications_total",
				Help: "Chunk verifications by result",
			}, []string{"result"}),

			AssembliesTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
				Name: "shardstore_file_assemblies_total",
				Help: "File assemblies by outcome",
			}, []string{"outcome"}),
		}
	})

	return storeMetricsInstance
}

// GetStoreMetrics returns the singleton, or nil before initialization.
func GetStoreMetrics() *StoreMetrics {
	return storeMetricsInstance
}

// RecordReplicaWrite records one replica write attempt.
func (m *StoreMetrics) RecordReplicaWrite(outcome string, durationSeconds float64, bytes int64) {
	m.ChunkWritesTotal.WithLabelValues(outcome).Inc()
	m.ReplicaWriteDuration.WithLabelValues(outcome).Observe(durationSeconds)
	if outcome == "completed" {
		m.BytesStored.Add(float64(bytes))
	}
}

// RecordVerification records one verifier run.
func (m *StoreMetrics) RecordVerification(valid bool) {
	if valid {
		m.VerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		m.VerificationsTotal.WithLabelValues("corrupted").Inc()
	}
}
