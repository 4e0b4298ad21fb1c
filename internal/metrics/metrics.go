// Package metrics exposes Prometheus collectors for the scrapewatch service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal            *prometheus.CounterVec
	fetchDurationSeconds *prometheus.HistogramVec
	changesTotal         *prometheus.CounterVec
	priceAlertsTotal     *prometheus.CounterVec
	activeJobs           prometheus.Gauge
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapewatch_jobs_total",
				Help: "Total number of job executions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapewatch_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by source key.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"source"},
		)

		changesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapewatch_changes_total",
				Help: "Total changed items detected, labeled by source key and direction.",
			},
			[]string{"source", "direction"},
		)

		priceAlertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapewatch_price_alerts_total",
				Help: "Total price alerts fired, labeled by source key.",
			},
			[]string{"source"},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrapewatch_active_jobs",
				Help: "Number of jobs currently executing.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrapewatch_http_requests_total",
				Help: "Total HTTP requests, labeled by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrapewatch_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)
	})
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given outcome.
func ObserveJob(outcome string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records the duration of one fetch for a source.
func ObserveFetch(source string, duration time.Duration) {
	if fetchDurationSeconds == nil {
		return
	}
	fetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveChanges records detected item changes for a source.
func ObserveChanges(source string, added, removed int) {
	if changesTotal == nil {
		return
	}
	if added > 0 {
		changesTotal.WithLabelValues(source, "added").Add(float64(added))
	}
	if removed > 0 {
		changesTotal.WithLabelValues(source, "removed").Add(float64(removed))
	}
}

// ObservePriceAlerts records fired price alerts for a source.
func ObservePriceAlerts(source string, count int) {
	if priceAlertsTotal == nil || count <= 0 {
		return
	}
	priceAlertsTotal.WithLabelValues(source).Add(float64(count))
}

// IncActiveJobs increments the active jobs gauge.
func IncActiveJobs() {
	if activeJobs != nil {
		activeJobs.Inc()
	}
}

// DecActiveJobs decrements the active jobs gauge.
func DecActiveJobs() {
	if activeJobs != nil {
		activeJobs.Dec()
	}
}
