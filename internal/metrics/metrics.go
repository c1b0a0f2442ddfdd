package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreLatency records per-operation store latency. Used by the metrics
	// store wrapper.
	StoreLatency *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// EmbeddingLatency records embedding provider inference latency.
	EmbeddingLatency prometheus.Histogram
	// EmbeddingFailuresTotal counts embed calls that fell back to text search.
	EmbeddingFailuresTotal prometheus.Counter

	// MemoriesDecayedTotal counts memories whose importance the forgetting
	// curve lowered.
	MemoriesDecayedTotal prometheus.Counter

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge
	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge
)

var initOnce sync.Once

// Init registers all Prometheus metrics. Safe to call multiple times; only the
// first call registers. Must run before store/cache initialization.
func Init() {
	initOnce.Do(initInner)
}

func initInner() {
	f := promauto.With(prometheus.DefaultRegisterer)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memkeep_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "memkeep_cache_hits_total",
		Help: "Total memory cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "memkeep_cache_misses_total",
		Help: "Total memory cache misses",
	})

	EmbeddingLatency = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "memkeep_embedding_latency_seconds",
		Help:    "Embedding provider inference latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	EmbeddingFailuresTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "memkeep_embedding_failures_total",
		Help: "Embed calls that failed and disabled the semantic path",
	})

	MemoriesDecayedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "memkeep_memories_decayed_total",
		Help: "Memories decayed by the forgetting curve",
	})

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "memkeep_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "memkeep_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})
}
