package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Booking outcomes recorded by MetricsService.
const (
	OutcomeBooked           = "booked"
	OutcomeCapacityExceeded = "capacity_exceeded"
	OutcomeConflict         = "conflict"
	OutcomeNotFound         = "not_found"
	OutcomeError            = "error"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// caching and scheduling outcomes.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHitRatio     prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	sessionsCreated   prometheus.Counter
	sessionsDeleted   prometheus.Counter
	bookings          *prometheus.CounterVec
	cancellations     prometheus.Counter
	scheduleConflicts *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	sessionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fitclass_sessions_created_total",
		Help: "Class sessions created",
	})

	sessionsDeleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fitclass_sessions_deleted_total",
		Help: "Class sessions deleted",
	})

	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitclass_booking_attempts_total",
		Help: "Booking attempts by outcome",
	}, []string{"outcome"})

	cancellations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fitclass_booking_cancellations_total",
		Help: "Bookings cancelled",
	})

	scheduleConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fitclass_schedule_conflicts_total",
		Help: "Rejected requests caused by overlapping sessions, by subject",
	}, []string{"subject"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		sessionsCreated, sessionsDeleted, bookings, cancellations, scheduleConflicts, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		sessionsCreated:   sessionsCreated,
		sessionsDeleted:   sessionsDeleted,
		bookings:          bookings,
		cancellations:     cancellations,
		scheduleConflicts: scheduleConflicts,
	}
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup and updates the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// SessionCreated counts a scheduled session.
func (m *MetricsService) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// SessionDeleted counts a removed session.
func (m *MetricsService) SessionDeleted() {
	if m == nil {
		return
	}
	m.sessionsDeleted.Inc()
}

// BookingAttempt counts a booking request by outcome.
func (m *MetricsService) BookingAttempt(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

// BookingCancelled counts a released seat.
func (m *MetricsService) BookingCancelled() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

// ScheduleConflict counts an overlap rejection for a trainer or trainee.
func (m *MetricsService) ScheduleConflict(subject string) {
	if m == nil {
		return
	}
	m.scheduleConflicts.WithLabelValues(subject).Inc()
}
