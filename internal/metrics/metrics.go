// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
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

	browsersInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraperhub_browsers_in_use",
			Help: "Number of browser handles currently checked out of the pool.",
		},
	)

	browserWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraperhub_browser_wait_seconds",
			Help:    "Time callers spent waiting for a free browser slot.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraperhub_ws_connections",
			Help: "Number of attached websocket connections.",
		},
	)

	wsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scraperhub_ws_dropped_total",
			Help: "Connections removed after a failed send.",
		},
	)

	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraperhub_pages_total",
			Help: "Listing pages fetched by scrapers, labeled by scraper and status.",
		},
		[]string{"scraper", "status"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraperhub_rate_limit_delay_seconds",
			Help:    "Time fetches were held back by per-host pacing.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"host"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetBrowsersInUse records the number of checked-out browser handles.
func SetBrowsersInUse(n int) {
	browsersInUse.Set(float64(n))
}

// ObserveBrowserWait records how long an Acquire waited for a slot.
func ObserveBrowserWait(d time.Duration) {
	browserWaitSeconds.Observe(d.Seconds())
}

// IncConnections increments the attached connection gauge.
func IncConnections() {
	wsConnections.Inc()
}

// DecConnections decrements the attached connection gauge.
func DecConnections() {
	wsConnections.Dec()
}

// ObserveDroppedConnection counts a connection removed after a failed send.
func ObserveDroppedConnection() {
	wsDroppedTotal.Inc()
}

// ObservePage counts one listing page fetched by a scraper.
func ObservePage(scraper, status string) {
	pagesTotal.WithLabelValues(scraper, status).Inc()
}

// ObserveRateLimitDelay records how long a fetch to host was paced.
func ObserveRateLimitDelay(host string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}
