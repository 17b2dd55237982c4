// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	verdictsTotal              *prometheus.CounterVec
	outcomesTotal              *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	strategyHitsTotal          *prometheus.CounterVec
	discoveredLinksTotal       *prometheus.CounterVec
	retriesTotal               *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramcrawl_pages_total",
				Help: "Pages opened, labeled by site and driver.",
			},
			[]string{"site", "driver"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramcrawl_bytes_total",
				Help: "Markup bytes captured, labeled by site.",
			},
			[]string{"site"},
		)

		verdictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramcrawl_page_verdicts_total",
				Help: "Gate classifications, labeled by verdict.",
			},
			[]string{"verdict"},
		)

		outcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramcrawl_task_outcomes_total",
				Help: "Task attempt outcomes, labeled by label, outcome and reason.",
			},
			[]string{"label", "outcome", "reason"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramcrawl_records_total",
				Help: "Records appended to the result sink, labeled by type.",
			},
			[]string{"type"},
		)

		strategyHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramcrawl_strategy_hits_total",
				Help: "Extraction fields resolved, labeled by field, strategy and layer.",
			},
			[]string{"field", "strategy", "layer"},
		)

		discoveredLinksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramcrawl_discovered_links_total",
				Help: "Post links queued by discovery, labeled by layer.",
			},
			[]string{"layer"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gramcrawl_retries_total",
				Help: "Tasks re-queued for another attempt, labeled by reason.",
			},
			[]string{"reason"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gramcrawl_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gramcrawl_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
	return promhttp.Handler()
}

// ObservePage counts an opened page and the size of its markup.
func ObservePage(site, driver string, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	pagesTotal.WithLabelValues(sanitized, driver).Inc()
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveVerdict counts one gate classification.
func ObserveVerdict(verdict string) {
	Init()
	verdictsTotal.WithLabelValues(verdict).Inc()
}

// ObserveOutcome counts one task attempt outcome.
func ObserveOutcome(label, outcome, reason string) {
	Init()
	outcomesTotal.WithLabelValues(label, outcome, reason).Inc()
}

// ObserveRecord counts one appended record.
func ObserveRecord(recordType string) {
	Init()
	recordsTotal.WithLabelValues(recordType).Inc()
}

// ObserveStrategyHit counts a field resolved by a strategy.
func ObserveStrategyHit(field, strategy string, layer int) {
	Init()
	strategyHitsTotal.WithLabelValues(field, strategy, strconv.Itoa(layer)).Inc()
}

// ObserveDiscovered adds n queued links for the discovery layer.
func ObserveDiscovered(layer string, n int) {
	Init()
	if n > 0 {
		discoveredLinksTotal.WithLabelValues(layer).Add(float64(n))
	}
}

// ObserveRetry counts a re-queued task.
func ObserveRetry(reason string) {
	Init()
	retriesTotal.WithLabelValues(reason).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
