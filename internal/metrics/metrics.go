// Package metrics exposes Prometheus collectors for the festival crawler.
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

// Fetch outcomes used as the "outcome" label.
const (
	OutcomeOK            = "ok"
	OutcomeStatus        = "status"
	OutcomeError         = "error"
	OutcomeFallbackOK    = "fallback_ok"
	OutcomeFallbackError = "fallback_error"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fallbackTotal              *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	pageErrorsTotal            *prometheus.CounterVec
	mirrorFailuresTotal        *prometheus.CounterVec
	batchDurationSeconds       prometheus.Histogram
	frontierSize               prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "festcrawl_fetch_attempts_total",
				Help: "Fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "festcrawl_fallback_total",
				Help: "Headless fallback invocations, labeled by trigger.",
			},
			[]string{"reason"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "festcrawl_records_total",
				Help: "Festival records written, labeled by site.",
			},
			[]string{"site"},
		)

		pageErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "festcrawl_page_errors_total",
				Help: "Pages recorded in the error log, labeled by kind.",
			},
			[]string{"kind"},
		)

		mirrorFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "festcrawl_mirror_failures_total",
				Help: "Record mirror writes that failed, labeled by mirror.",
			},
			[]string{"mirror"},
		)

		batchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "festcrawl_batch_duration_seconds",
				Help:    "Histogram of batch wall-clock durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		frontierSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "festcrawl_frontier_size",
				Help: "Number of pending frontier entries after the last batch.",
			},
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
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
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
	Init()
	return promhttp.Handler()
}

// ObserveFetch counts one fetch attempt.
func ObserveFetch(rawURL, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// ObserveFallback counts a headless fallback triggered for reason.
func ObserveFallback(reason string) {
	Init()
	fallbackTotal.WithLabelValues(reason).Inc()
}

// ObserveRecords adds n extracted records for the page's site.
func ObserveRecords(rawURL string, n int) {
	if n <= 0 {
		return
	}
	Init()
	recordsTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(n))
}

// ObservePageError counts a page written to the error log.
func ObservePageError(kind string) {
	Init()
	pageErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveMirrorFailure counts a failed mirror write.
func ObserveMirrorFailure(mirror string) {
	Init()
	mirrorFailuresTotal.WithLabelValues(mirror).Inc()
}

// ObserveBatch records a completed batch.
func ObserveBatch(duration time.Duration, remaining int) {
	Init()
	batchDurationSeconds.Observe(duration.Seconds())
	frontierSize.Set(float64(remaining))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
