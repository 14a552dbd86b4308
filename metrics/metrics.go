// Package metrics exposes the oracle's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PriceUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_price_updates_total",
		Help: "Total number of aggregated price updates",
	})
	UpdateFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_update_failures_total",
		Help: "Total number of assets skipped for lack of valid sources",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_cache_hits_total",
		Help: "Total number of price cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_cache_misses_total",
		Help: "Total number of price cache misses",
	})
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_submissions_total",
		Help: "Total number of on-chain price submissions by outcome",
	}, []string{"status"})
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_cycle_duration_seconds",
		Help:    "Duration of one aggregate-and-submit cycle",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30},
	})
)
