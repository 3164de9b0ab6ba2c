// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sectionsCrawledTotal       *prometheus.CounterVec
	dishesScrapedTotal         prometheus.Counter
	imageDownloadsTotal        *prometheus.CounterVec
	catalogWritesTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		sectionsCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_sections_crawled_total",
				Help: "Total number of section pages crawled, labeled by section and status.",
			},
			[]string{"section", "status"},
		)

		dishesScrapedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "menu_dishes_scraped_total",
				Help: "Total number of dish candidates extracted from section pages.",
			},
		)

		imageDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_image_downloads_total",
				Help: "Total number of image queue items processed, labeled by result.",
			},
			[]string{"result"},
		)

		catalogWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_catalog_writes_total",
				Help: "Total number of dishes handled by catalog writes, labeled by outcome.",
			},
			[]string{"outcome"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSection increments the per-section crawl counter.
func ObserveSection(section, status string) {
	if sectionsCrawledTotal == nil {
		return
	}
	sectionsCrawledTotal.WithLabelValues(section, status).Inc()
}

// AddDishesScraped adds extracted candidates to the dish counter.
func AddDishesScraped(n int) {
	if dishesScrapedTotal == nil || n <= 0 {
		return
	}
	dishesScrapedTotal.Add(float64(n))
}

// ObserveImage increments the image processing counter for one result
// (downloaded, failed, skipped).
func ObserveImage(result string) {
	if imageDownloadsTotal == nil {
		return
	}
	imageDownloadsTotal.WithLabelValues(result).Inc()
}

// ObserveCatalogWrite increments the catalog outcome counter
// (added, duplicate, zero_price).
func ObserveCatalogWrite(outcome string, n int) {
	if catalogWritesTotal == nil || n <= 0 {
		return
	}
	catalogWritesTotal.WithLabelValues(outcome).Add(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
