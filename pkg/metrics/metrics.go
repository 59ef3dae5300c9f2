// Package metrics provides Prometheus implementations of the loader and
// cache metrics interfaces. Collectors are registered on a caller-supplied
// registry so tests and embedders can keep them isolated.
package metrics

import (
	"time"

	"github.com/illmade-knight/go-graphicfetch/pkg/cache"
	"github.com/illmade-knight/go-graphicfetch/pkg/loader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "graphicfetch"

// loaderMetrics is the Prometheus implementation of loader.Metrics.
type loaderMetrics struct {
	memoryHits    prometheus.Counter
	coalesced     prometheus.Counter
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	active        prometheus.Gauge
	queued        prometheus.Gauge
}

// NewLoaderMetrics registers loader collectors on reg.
func NewLoaderMetrics(reg prometheus.Registerer) loader.Metrics {
	return &loaderMetrics{
		memoryHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_memory_hits_total",
			Help:      "Fetch calls answered synchronously from the memory cache",
		}),
		coalesced: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_coalesced_requests_total",
			Help:      "Fetch calls that joined an already pending load",
		}),
		fetches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_fetches_total",
			Help:      "Finished loads by outcome",
		}, []string{"outcome"}), // success, error, aborted
		fetchDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loader_fetch_duration_milliseconds",
			Help:      "Time from a load starting to its completion",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"outcome"}),
		active: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loader_active_fetches",
			Help:      "Loads currently holding a concurrency slot",
		}),
		queued: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loader_queued_fetches",
			Help:      "Loads waiting for a concurrency slot",
		}),
	}
}

func (m *loaderMetrics) RecordMemoryHit() {
	m.memoryHits.Inc()
}

func (m *loaderMetrics) RecordCoalesced() {
	m.coalesced.Inc()
}

func (m *loaderMetrics) ObserveFetch(outcome string, d time.Duration) {
	m.fetches.WithLabelValues(outcome).Inc()
	m.fetchDuration.WithLabelValues(outcome).Observe(float64(d) / float64(time.Millisecond))
}

func (m *loaderMetrics) SetQueueDepth(active, queued int) {
	m.active.Set(float64(active))
	m.queued.Set(float64(queued))
}

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
}

// NewCacheMetrics registers cache collectors on reg. One instance serves every
// cache; the cache name is a label.
func NewCacheMetrics(reg prometheus.Registerer) cache.Metrics {
	return &cacheMetrics{
		hits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache reads served, by cache and tier",
		}, []string{"cache", "tier"}), // tier: memory, store
		misses: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache reads that found nothing in either tier",
		}, []string{"cache"}),
		evictions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries dropped from the memory tier by capacity",
		}, []string{"cache"}),
		writeFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_store_write_failures_total",
			Help:      "Write-through failures that were logged and ignored",
		}, []string{"cache"}),
	}
}

func (m *cacheMetrics) RecordHit(cacheName, tier string) {
	m.hits.WithLabelValues(cacheName, tier).Inc()
}

func (m *cacheMetrics) RecordMiss(cacheName string) {
	m.misses.WithLabelValues(cacheName).Inc()
}

func (m *cacheMetrics) RecordEviction(cacheName string) {
	m.evictions.WithLabelValues(cacheName).Inc()
}

func (m *cacheMetrics) RecordStoreWriteFailure(cacheName string) {
	m.writeFailures.WithLabelValues(cacheName).Inc()
}
