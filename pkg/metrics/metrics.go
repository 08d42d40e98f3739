// Package metrics provides Prometheus metrics for the standings service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "overunder"

var (
	refreshCycles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_cycles_total",
		Help:      "Completed refresh cycles, including ones with source errors.",
	})

	refreshSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_skipped_total",
		Help:      "Refresh attempts skipped because another process held the lock.",
	})

	gamesUpserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "games_upserted_total",
		Help:      "Game records processed by refresh cycles, by outcome.",
	}, []string{"outcome"}) // added, updated, skipped, rejected

	sourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "source_errors_total",
		Help:      "Per-source errors captured in refresh reports.",
	}, []string{"source"})

	providerRequestSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_request_seconds",
		Help:      "Results-provider schedule fetch duration.",
		Buckets:   prometheus.DefBuckets,
	})

	standingsSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "standings_compute_seconds",
		Help:      "Time to load a snapshot and compute full standings.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	lastRefreshUnix = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_successful_refresh_timestamp_seconds",
		Help:      "Unix time of the last refresh with no source errors.",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint and status code.",
	}, []string{"endpoint", "code"})

	httpRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_seconds",
		Help:      "HTTP request duration by endpoint.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// RecordRefreshCycle counts one completed (non-skipped) refresh cycle.
func RecordRefreshCycle() { refreshCycles.Inc() }

// RecordRefreshSkipped counts a cycle lost to lock contention.
func RecordRefreshSkipped() { refreshSkipped.Inc() }

// RecordUpsert counts game records by upsert outcome.
func RecordUpsert(outcome string, n int) {
	if n > 0 {
		gamesUpserted.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordSourceError counts one failed source in a refresh cycle.
func RecordSourceError(source string) { sourceErrors.WithLabelValues(source).Inc() }

// ObserveProviderRequest records one schedule fetch duration in seconds.
func ObserveProviderRequest(seconds float64) { providerRequestSeconds.Observe(seconds) }

// ObserveStandingsCompute records one standings computation in seconds.
func ObserveStandingsCompute(seconds float64) { standingsSeconds.Observe(seconds) }

// SetLastRefresh publishes the staleness indicator.
func SetLastRefresh(unixSeconds float64) { lastRefreshUnix.Set(unixSeconds) }

// RecordHTTPRequest counts one request and its duration.
func RecordHTTPRequest(endpoint, code string, seconds float64) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
	httpRequestSeconds.WithLabelValues(endpoint).Observe(seconds)
}
