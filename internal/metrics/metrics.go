// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	externalCallsTotal          *prometheus.CounterVec
	externalCallDurationSeconds *prometheus.HistogramVec
	externalRetriesTotal        *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	harvesterActiveWorkers      *prometheus.GaugeVec
	harvesterRateLimitDelaySecs *prometheus.HistogramVec
	harvesterClaimedUnitsTotal  *prometheus.CounterVec
	harvesterSeededPointsTotal  *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		externalCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_external_calls_total",
				Help: "Calls to external imagery services, labeled by service, host, and result.",
			},
			[]string{"service", "host", "result"},
		)

		externalCallDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_external_call_duration_seconds",
				Help:    "Latency of external imagery service calls.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"service"},
		)

		externalRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_external_retries_total",
				Help: "Retried external calls, labeled by service.",
			},
			[]string{"service"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		harvesterActiveWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently processing a unit, labeled by pass.",
			},
			[]string{"pass"},
		)

		harvesterRateLimitDelaySecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"key"},
		)

		harvesterClaimedUnitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_claimed_units_total",
				Help: "Units claimed from the task store, labeled by pass.",
			},
			[]string{"pass"},
		)

		harvesterSeededPointsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_seeded_points_total",
				Help: "Sample points written by the sampler, labeled by zone.",
			},
			[]string{"zone"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveExternalCall records one call to an external service.
func ObserveExternalCall(service, endpoint, result string, duration time.Duration) {
	Init()
	externalCallsTotal.WithLabelValues(service, SanitizeHost(endpoint), result).Inc()
	externalCallDurationSeconds.WithLabelValues(service).Observe(duration.Seconds())
}

// ObserveRetry counts a retried external call.
func ObserveRetry(service string) {
	Init()
	externalRetriesTotal.WithLabelValues(service).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge for pass.
func IncActiveWorkers(pass string) {
	Init()
	harvesterActiveWorkers.WithLabelValues(pass).Inc()
}

// DecActiveWorkers decrements the active workers gauge for pass.
func DecActiveWorkers(pass string) {
	Init()
	harvesterActiveWorkers.WithLabelValues(pass).Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(key string, duration time.Duration) {
	Init()
	harvesterRateLimitDelaySecs.WithLabelValues(key).Observe(duration.Seconds())
}

// ObserveClaim counts units claimed for pass.
func ObserveClaim(pass string, n int) {
	Init()
	harvesterClaimedUnitsTotal.WithLabelValues(pass).Add(float64(n))
}

// ObserveSeeded counts points seeded for zone.
func ObserveSeeded(zone string, n int64) {
	Init()
	harvesterSeededPointsTotal.WithLabelValues(zone).Add(float64(n))
}
