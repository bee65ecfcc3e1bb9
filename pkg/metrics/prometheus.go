// Package metrics provides Prometheus metrics for the BlindFold ledger service.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the ledger service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ledger
	requestsCreated       prometheus.Counter
	statusTransitions     *prometheus.CounterVec
	verificationsStored   prometheus.Counter
	ledgerErrors          *prometheus.CounterVec
	totalRequests         prometheus.Gauge
	totalVerifications    prometheus.Gauge
	pendingRequests       prometheus.Gauge
	idempotentReplays     prometheus.Counter
	storeOperationLatency *prometheus.HistogramVec

	// Risk scoring
	riskScores    *prometheus.CounterVec
	riskCacheHits prometheus.Counter
	riskCacheMiss prometheus.Counter

	// Event bus
	eventsPublished      *prometheus.CounterVec
	eventsDropped        *prometheus.CounterVec
	eventsDispatched     *prometheus.CounterVec
	eventDispatchErrors  prometheus.Counter
	eventDispatchLatency prometheus.Histogram
	queueSize            prometheus.Gauge
	queueCapacity        prometheus.Gauge
	workerCount          prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// global pairs the singleton manager with the custom registry it registers
// into, so the default Go collectors stay out of /metrics.
type global struct {
	manager  *Manager
	registry *prometheus.Registry
}

var current atomic.Pointer[global] //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // global metrics setup
	Configure()
}

// Configure rebuilds the global manager from opts on a fresh registry, which
// GetRegistry then returns. Call it at startup before the registry is served.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	all := append(append([]Option{}, opts...), WithPrometheusRegistry(registry))
	current.Store(&global{manager: NewManager(all...), registry: registry})
}

func globalManager() *Manager {
	return current.Load().manager
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "blindfold",
		subsystem:        "ledger",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.requestsCreated = m.counter("requests_created_total", "Advisor requests accepted into the ledger")
	m.statusTransitions = m.counterVec("status_transitions_total", "Request status transitions", "from", "to")
	m.verificationsStored = m.counter("verifications_stored_total", "Verification records appended to the ledger")
	m.ledgerErrors = m.counterVec("errors_total", "Ledger operations rejected, by error kind", "operation", "kind")
	m.totalRequests = m.gauge("requests", "Requests ever inserted into the ledger")
	m.totalVerifications = m.gauge("verifications", "Verifications ever inserted into the ledger")
	m.pendingRequests = m.gauge("pending_requests", "Requests currently waiting for the relay")
	m.idempotentReplays = m.counter("idempotent_replays_total", "Submissions answered from the idempotency cache")
	m.storeOperationLatency = m.histogramVec("store_operation_milliseconds", "Store unit-of-work latency in milliseconds", "kind")

	m.riskScores = m.counterVec("risk_scores_total", "Portfolio risk scores computed, by tier", "tier")
	m.riskCacheHits = m.counter("risk_cache_hits_total", "Risk scores served from cache")
	m.riskCacheMiss = m.counter("risk_cache_misses_total", "Risk scores computed on a cache miss")

	m.eventsPublished = m.counterVec("events_published_total", "Ledger events published to the event bus", "kind")
	m.eventsDropped = m.counterVec("events_dropped_total", "Ledger events dropped because the bus was full or closed", "kind")
	m.eventsDispatched = m.counterVec("events_dispatched_total", "Ledger events delivered to handlers", "kind")
	m.eventDispatchErrors = m.counter("event_dispatch_errors_total", "Event handler failures")
	m.eventDispatchLatency = m.histogram("event_dispatch_milliseconds", "Time spent dispatching one event", m.histogramBuckets)
	m.queueSize = m.gauge("event_queue_size", "Events waiting in the bus")
	m.queueCapacity = m.gauge("event_queue_capacity", "Event bus capacity")
	m.workerCount = m.gauge("event_workers", "Event dispatch workers")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordRequestCreated increments the created requests counter.
func RecordRequestCreated() {
	globalManager().requestsCreated.Inc()
}

// RecordTransition counts a request status change.
func RecordTransition(from, to string) {
	globalManager().statusTransitions.WithLabelValues(from, to).Inc()
}

// RecordVerificationStored increments the stored verifications counter.
func RecordVerificationStored() {
	globalManager().verificationsStored.Inc()
}

// RecordLedgerError counts a rejected ledger operation.
func RecordLedgerError(operation, kind string) {
	globalManager().ledgerErrors.WithLabelValues(operation, kind).Inc()
}

// UpdateLedgerTotals sets the ledger size gauges.
func UpdateLedgerTotals(requests, verifications uint64) {
	globalManager().totalRequests.Set(float64(requests))
	globalManager().totalVerifications.Set(float64(verifications))
}

// UpdatePendingRequests sets the pending requests gauge.
func UpdatePendingRequests(count int) {
	globalManager().pendingRequests.Set(float64(count))
}

// RecordIdempotentReplay counts a submission answered from the idempotency cache.
func RecordIdempotentReplay() {
	globalManager().idempotentReplays.Inc()
}

// RecordStoreLatency records the latency of one store unit of work ("atomic" or "view").
func RecordStoreLatency(kind string, latencyMs float64) {
	globalManager().storeOperationLatency.WithLabelValues(kind).Observe(latencyMs)
}

// RecordRiskScore counts a computed risk score by tier.
func RecordRiskScore(tier string) {
	globalManager().riskScores.WithLabelValues(tier).Inc()
}

// RecordRiskCacheHit counts a cached risk score.
func RecordRiskCacheHit() {
	globalManager().riskCacheHits.Inc()
}

// RecordRiskCacheMiss counts a risk score computed on a miss.
func RecordRiskCacheMiss() {
	globalManager().riskCacheMiss.Inc()
}

// RecordEventPublished counts an event accepted by the bus.
func RecordEventPublished(kind string) {
	globalManager().eventsPublished.WithLabelValues(kind).Inc()
}

// RecordEventDropped counts an event the bus could not accept.
func RecordEventDropped(kind string) {
	globalManager().eventsDropped.WithLabelValues(kind).Inc()
}

// RecordEventDispatched counts an event delivered to handlers.
func RecordEventDispatched(kind string) {
	globalManager().eventsDispatched.WithLabelValues(kind).Inc()
}

// RecordEventDispatchError counts a failing event handler.
func RecordEventDispatchError() {
	globalManager().eventDispatchErrors.Inc()
}

// RecordEventDispatchLatency records event dispatch latency in milliseconds.
func RecordEventDispatchLatency(latencyMs float64) {
	globalManager().eventDispatchLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current event queue size.
func UpdateQueueSize(size int) {
	globalManager().queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the event queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager().queueCapacity.Set(float64(capacity))
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager().workerCount.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager().systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager().systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager().systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return current.Load().registry
}
