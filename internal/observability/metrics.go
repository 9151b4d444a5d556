package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Outbound weather/geocoding API call rate. Watch for: error vs success ratio.
	APICallsTotal *prometheus.CounterVec

	// Outbound API latency per request. Watch for: p95 > 2s (upstream degradation).
	APICallDuration *prometheus.HistogramVec

	// Requests denied by the local sliding-window limiter before any network I/O.
	RateLimitDeniedTotal prometheus.Counter

	// Outbound requests currently in flight (pending set size).
	RequestsInFlight prometheus.Gauge

	// Domain-cache hits by snapshot kind.
	CacheHitsTotal *prometheus.CounterVec

	// Snapshots served stale after an upstream failure, by kind.
	StaleServesTotal *prometheus.CounterVec

	// Persistent store failures by operation. Reads degrade to absent; writes surface.
	StoreErrorsTotal *prometheus.CounterVec

	// Strategy engine executions by strategy and outcome (network, cache, unavailable).
	StrategyResultsTotal *prometheus.CounterVec

	// Local HTTP request rate.
	HTTPRequestsTotal *prometheus.CounterVec

	// Local HTTP latency per request.
	HTTPRequestDuration *prometheus.HistogramVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	APICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiCallsTotal",
			Help: "Total number of outbound weather/geocoding API calls",
		},
		[]string{"endpoint", "status"},
	)
	APICallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apiCallDurationSeconds",
			Help:    "Outbound API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of outbound requests denied by the local sliding-window limiter",
		},
	)
	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "requestsInFlight",
			Help: "Number of outbound requests currently pending",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of domain-cache hits by snapshot kind",
		},
		[]string{"kind"},
	)
	StaleServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleServesTotal",
			Help: "Snapshots served from stale fallback after an upstream failure",
		},
		[]string{"kind"},
	)
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeErrorsTotal",
			Help: "Persistent store failures by operation",
		},
		[]string{"op"},
	)
	StrategyResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategyResultsTotal",
			Help: "Cache strategy executions by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of local HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Local HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(
		APICallsTotal, APICallDuration, RateLimitDeniedTotal, RequestsInFlight,
		CacheHitsTotal, StaleServesTotal, StoreErrorsTotal, StrategyResultsTotal,
		HTTPRequestsTotal, HTTPRequestDuration,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
