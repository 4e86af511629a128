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

// MetricsService owns the Prometheus registry for the ledger API. All
// methods tolerate a nil receiver so instrumentation can be disabled by
// passing nil through the wiring.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec

	cacheLatency  prometheus.Observer
	cacheHitRatio prometheus.Gauge
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter

	versionsCreated prometheus.Counter
	sendsRecorded   *prometheus.CounterVec
	versionRaces    prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func newHistogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: prometheus.DefBuckets,
	}, labels)
}

// NewMetricsService builds and registers every collector.
func NewMetricsService() *MetricsService {
	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	m := &MetricsService{
		registry: prometheus.NewRegistry(),

		requestDuration: newHistogramVec("http_request_duration_seconds",
			"Duration of HTTP requests in seconds", "method", "path", "status"),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		dbQueryDuration: newHistogramVec("db_query_duration_seconds",
			"Duration of database queries", "query"),

		cacheLatency: cacheLatency,
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits:   newCounter("cache_hits_total", "Total cache hits"),
		cacheMisses: newCounter("cache_misses_total", "Total cache misses"),

		versionsCreated: newCounter("proposal_versions_created_total",
			"Total proposal version snapshots created"),
		sendsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proposal_sends_recorded_total",
			Help: "Total proposal send records by method",
		}, []string{"method"}),
		versionRaces: newCounter("proposal_version_races_total",
			"Total version allocation conflicts detected"),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal, m.dbQueryDuration,
		cacheLatency, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.versionsCreated, m.sendsRecorded, m.versionRaces,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the scrape endpoint handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordCacheOperation tracks one cache lookup and refreshes the hit ratio.
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
	if total := hits + atomic.LoadUint64(&m.cacheMissCount); total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveDBQuery records database query timing under the given label.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordVersionCreated counts a successful snapshot append.
func (m *MetricsService) RecordVersionCreated() {
	if m == nil {
		return
	}
	m.versionsCreated.Inc()
}

// RecordSend counts a recorded transmission by method.
func (m *MetricsService) RecordSend(method string) {
	if m == nil {
		return
	}
	m.sendsRecorded.WithLabelValues(method).Inc()
}

// RecordVersionRace counts a lost optimistic version allocation.
func (m *MetricsService) RecordVersionRace() {
	if m == nil {
		return
	}
	m.versionRaces.Inc()
}
