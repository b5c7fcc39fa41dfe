package metrics

import "github.com/prometheus/client_golang/prometheus"

// MediaCacheMetrics holds Prometheus metrics for the shared media cache.
type MediaCacheMetrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Fetches       *prometheus.CounterVec
	Evictions     prometheus.Counter
	Invalidations prometheus.Counter
	Entries       prometheus.Gauge
}

// NewMediaCacheMetrics creates and registers media cache metrics on the given registry.
func NewMediaCacheMetrics(reg prometheus.Registerer) *MediaCacheMetrics {
	m := &MediaCacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media_cache",
			Name:      "hits_total",
			Help:      "Total number of acquisitions served from the cache.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media_cache",
			Name:      "misses_total",
			Help:      "Total number of acquisitions that required a fetch.",
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media_cache",
			Name:      "fetches_total",
			Help:      "Total number of outbound media downloads, by result.",
		}, []string{"result"}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media_cache",
			Name:      "evictions_total",
			Help:      "Total number of entries dropped after their last release.",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media_cache",
			Name:      "invalidations_total",
			Help:      "Total number of explicit invalidations.",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "media_cache",
			Name:      "entries",
			Help:      "Number of media entries currently cached.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Fetches, m.Evictions, m.Invalidations, m.Entries)
	return m
}
