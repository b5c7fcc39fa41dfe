package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestionMetrics tracks the polling loop.
type IngestionMetrics struct {
	Cycles         prometheus.Counter
	SearchFailures *prometheus.CounterVec
	Emitted        prometheus.Counter
	Skipped        *prometheus.CounterVec
	LastSeenID     prometheus.Gauge
	CycleDuration  prometheus.Histogram
}

// NewIngestionMetrics creates and registers ingestion metrics on the given registry.
func NewIngestionMetrics(reg prometheus.Registerer) *IngestionMetrics {
	m := &IngestionMetrics{
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "cycles_total",
			Help:      "Total number of polling cycles started.",
		}),
		SearchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "search_failures_total",
			Help:      "Total number of failed search requests, by reason.",
		}, []string{"reason"}),
		Emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "tweets_emitted_total",
			Help:      "Total number of tweets appended to the timeline.",
		}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "tweets_skipped_total",
			Help:      "Total number of searched tweets not appended, by reason.",
		}, []string{"reason"}),
		LastSeenID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "last_seen_id",
			Help:      "Highest status id observed so far.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "cycle_duration_seconds",
			Help:      "Time spent searching and emitting within one cycle.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	reg.MustRegister(m.Cycles, m.SearchFailures, m.Emitted, m.Skipped, m.LastSeenID, m.CycleDuration)
	return m
}
