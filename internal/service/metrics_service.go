package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and deliverable workflows.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	periodsCreated      prometheus.Counter
	transitions         *prometheus.CounterVec
	syncErrors          prometheus.Counter
	syncDuration        prometheus.Histogram
	unpaidApprovedGauge prometheus.Gauge
}

// NewMetricsService registers the service collectors on a private registry.
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
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	periodsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deliverable_periods_created_total",
		Help: "Deliverable rows created by period synchronisation",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deliverable_transitions_total",
		Help: "Deliverable workflow transitions by kind",
	}, []string{"transition"})

	syncErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deliverable_sync_errors_total",
		Help: "Period synchronisations that failed with an infrastructure error",
	})

	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "deliverable_sync_duration_seconds",
		Help:    "Duration of period synchronisation per contract",
		Buckets: prometheus.DefBuckets,
	})

	unpaidApproved := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "deliverables_approved_without_payment",
		Help: "Approved deliverables lacking a payment reference at the last integrity check",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups, dbQueryDuration,
		periodsCreated, transitions, syncErrors, syncDuration, unpaidApproved, goroutines,
	)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		cacheLatency:        cacheLatency,
		cacheWrite:          cacheWrite,
		cacheLookups:        cacheLookups,
		dbQueryDuration:     dbQueryDuration,
		periodsCreated:      periodsCreated,
		transitions:         transitions,
		syncErrors:          syncErrors,
		syncDuration:        syncDuration,
		unpaidApprovedGauge: unpaidApproved,
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

// Registry returns the underlying registry, mainly for tests.
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

// RecordCacheOperation records a cache lookup and its latency.
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

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveSync records one synchronisation run.
func (m *MetricsService) ObserveSync(created int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(duration.Seconds())
	if created > 0 {
		m.periodsCreated.Add(float64(created))
	}
	if err != nil {
		m.syncErrors.Inc()
	}
}

// RecordTransition counts a successful workflow transition.
func (m *MetricsService) RecordTransition(transition string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition).Inc()
}

// SetApprovedWithoutPayment publishes the latest integrity check result.
func (m *MetricsService) SetApprovedWithoutPayment(count int) {
	if m == nil {
		return
	}
	m.unpaidApprovedGauge.Set(float64(count))
}
