// Package metrics provides Prometheus metrics for the seat allocation service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultNamespace       = "seatalloc"
	allocationSubsystem    = "allocation"
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the allocation service.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Allocation pass metrics
	passesTotal       *prometheus.CounterVec
	passDuration      *prometheus.HistogramVec
	passRetries       prometheus.Counter
	placements        *prometheus.CounterVec
	overCapacity      *prometheus.GaugeVec
	rosterSize        *prometheus.GaugeVec
	allocationClosed  *prometheus.GaugeVec
	confirmations     *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	storeOpLatency    *prometheus.HistogramVec
	storeOpErrors     *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpRequestTiming *prometheus.HistogramVec

	// Queue Metrics - pass request queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics - pass runners
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	errorRateByComponent *prometheus.CounterVec

	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global manager with opts on a fresh registry, which
// GetRegistry then returns. Call it at startup, before metrics are served.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        defaultNamespace,
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.passesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: allocationSubsystem, ConstLabels: constLabels,
		Name: "passes_total",
		Help: "Total number of allocation passes by category and outcome",
	}, []string{"category", "status"})

	m.passDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: allocationSubsystem, ConstLabels: constLabels,
		Name:    "pass_duration_milliseconds",
		Help:    "Wall time of an allocation pass including load and persist",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"category"})

	m.passRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: allocationSubsystem, ConstLabels: constLabels,
		Name: "pass_retries_total",
		Help: "Passes re-run because a confirmation landed during the pass",
	})

	m.placements = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: allocationSubsystem, ConstLabels: constLabels,
		Name: "placements_total",
		Help: "Applicant outcomes by category and kind (allocated, fallback, retained, unassigned)",
	}, []string{"category", "kind"})

	m.overCapacity = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: allocationSubsystem, ConstLabels: constLabels,
		Name: "resources_over_capacity",
		Help: "Resources whose allocated count exceeds capacity after the latest pass",
	}, []string{"category"})

	m.rosterSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: allocationSubsystem, ConstLabels: constLabels,
		Name: "roster_size",
		Help: "Applicants considered by the latest pass",
	}, []string{"category"})

	m.allocationClosed = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: allocationSubsystem, ConstLabels: constLabels,
		Name: "allocation_closed",
		Help: "1 when allocation for the category is locked",
	}, []string{"category"})

	m.confirmations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: allocationSubsystem, ConstLabels: constLabels,
		Name: "confirmations_total",
		Help: "Confirmation attempts by result",
	}, []string{"category", "result"})

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: allocationSubsystem, ConstLabels: constLabels,
		Name: "preference_submissions_total",
		Help: "Preference submissions by result",
	}, []string{"category", "result"})

	m.storeOpLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "store", ConstLabels: constLabels,
		Name:    "operation_latency_milliseconds",
		Help:    "Store operation latency in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"backend", "op"})

	m.storeOpErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "store", ConstLabels: constLabels,
		Name: "operation_errors_total",
		Help: "Store operations that failed",
	}, []string{"backend", "op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "http", ConstLabels: constLabels,
		Name: "requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestTiming = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "http", ConstLabels: constLabels,
		Name:    "request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue", ConstLabels: constLabels,
		Name: "size",
		Help: "Pass requests waiting in the queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue", ConstLabels: constLabels,
		Name: "capacity",
		Help: "Maximum queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue", ConstLabels: constLabels,
		Name: "utilization_ratio",
		Help: "Queue utilization ratio (0.0 to 1.0)",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "queue", ConstLabels: constLabels,
		Name: "enqueue_total",
		Help: "Total number of pass requests enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "queue", ConstLabels: constLabels,
		Name: "dequeue_total",
		Help: "Total number of pass requests dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "queue", ConstLabels: constLabels,
		Name: "enqueue_errors_total",
		Help: "Enqueue attempts rejected because the queue was full or closed",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "worker", ConstLabels: constLabels,
		Name: "count",
		Help: "Configured pass workers",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "worker", ConstLabels: constLabels,
		Name: "active_count",
		Help: "Workers currently running a pass",
	})

	m.workerIdleCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "worker", ConstLabels: constLabels,
		Name: "idle_count",
		Help: "Workers waiting for a pass request",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "worker", ConstLabels: constLabels,
		Name:    "processing_latency_milliseconds",
		Help:    "Time from dequeue to pass completion",
		Buckets: m.histogramBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "worker", ConstLabels: constLabels,
		Name: "errors_total",
		Help: "Queued passes that failed",
	})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "errors", ConstLabels: constLabels,
		Name: "by_component_total",
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", ConstLabels: constLabels,
		Name: "goroutine_count",
		Help: "Number of goroutines",
	})
}

// Pass metrics.

// RecordPass records one finished pass.
func RecordPass(category, status string, durationMs float64) {
	globalManager.passesTotal.WithLabelValues(category, status).Inc()
	globalManager.passDuration.WithLabelValues(category).Observe(durationMs)
}

// RecordPassRetry increments the stale snapshot retry counter.
func RecordPassRetry() {
	globalManager.passRetries.Inc()
}

// RecordPlacements adds per-kind outcome counts for a pass.
func RecordPlacements(category string, allocated, fallback, retained, unassigned int) {
	globalManager.placements.WithLabelValues(category, "allocated").Add(float64(allocated))
	globalManager.placements.WithLabelValues(category, "fallback").Add(float64(fallback))
	globalManager.placements.WithLabelValues(category, "retained").Add(float64(retained))
	globalManager.placements.WithLabelValues(category, "unassigned").Add(float64(unassigned))
}

// UpdateOverCapacity sets the number of overfilled resources for a category.
func UpdateOverCapacity(category string, count int) {
	globalManager.overCapacity.WithLabelValues(category).Set(float64(count))
}

// UpdateRosterSize sets the roster size seen by the latest pass.
func UpdateRosterSize(category string, count int) {
	globalManager.rosterSize.WithLabelValues(category).Set(float64(count))
}

// UpdateAllocationClosed records the lock state of a category.
func UpdateAllocationClosed(category string, closed bool) {
	v := 0.0
	if closed {
		v = 1
	}
	globalManager.allocationClosed.WithLabelValues(category).Set(v)
}

// RecordConfirmation counts a confirmation attempt.
func RecordConfirmation(category, result string) {
	globalManager.confirmations.WithLabelValues(category, result).Inc()
}

// RecordSubmission counts a preference submission attempt.
func RecordSubmission(category, result string) {
	globalManager.submissions.WithLabelValues(category, result).Inc()
}

// Store metrics.

// RecordStoreLatency records store operation latency.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeOpLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(backend, op string) {
	globalManager.storeOpErrors.WithLabelValues(backend, op).Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestTiming.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RefreshInterval returns how often callers should refresh gauge metrics.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
