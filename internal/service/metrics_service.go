package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram

	generationDuration *prometheus.HistogramVec
	generationTotal    *prometheus.CounterVec
	placedPeriods      prometheus.Counter
	unplacedLessons    *prometheus.CounterVec
	verifyTotal        *prometheus.CounterVec
	conflictsFound     prometheus.Gauge
}

// NewMetricsService registers the HTTP, cache and timetable collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache get operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timetable_generation_duration_seconds",
			Help:    "Duration of timetable generation runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"scope"}),
		generationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_generations_total",
			Help: "Timetable generation runs by scope and outcome",
		}, []string{"scope", "outcome"}),
		placedPeriods: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_placed_periods_total",
			Help: "Periods placed by the generator",
		}),
		unplacedLessons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_unplaced_lessons_total",
			Help: "Lessons the generator could not place, by reason",
		}, []string{"reason"}),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_verifications_total",
			Help: "Conflict verification runs by result",
		}, []string{"result"}),
		conflictsFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_conflicts_last_verification",
			Help: "Teacher conflicts found by the most recent verification",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLookups, m.cacheLatency, m.cacheWrite,
		m.generationDuration, m.generationTotal, m.placedPeriods, m.unplacedLessons,
		m.verifyTotal, m.conflictsFound, goroutines,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveGeneration records one generation run. scope is "class" or "school".
func (m *MetricsService) ObserveGeneration(scope, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.generationDuration.WithLabelValues(scope).Observe(duration.Seconds())
	m.generationTotal.WithLabelValues(scope, outcome).Inc()
}

// RecordPlacement counts placed periods and unplaced lessons per reason.
func (m *MetricsService) RecordPlacement(placed int, unplacedByReason map[string]int) {
	if m == nil {
		return
	}
	m.placedPeriods.Add(float64(placed))
	for reason, count := range unplacedByReason {
		m.unplacedLessons.WithLabelValues(reason).Add(float64(count))
	}
}

// RecordVerification records the outcome of a conflict verification.
func (m *MetricsService) RecordVerification(result string, conflicts int) {
	if m == nil {
		return
	}
	m.verifyTotal.WithLabelValues(result).Inc()
	m.conflictsFound.Set(float64(conflicts))
}
