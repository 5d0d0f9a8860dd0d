// Package metrics provides Prometheus metrics for the hanta score service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Session lifecycle
	sessionsOpened *prometheus.CounterVec
	sessionsSwept  prometheus.Counter
	sessionsActive prometheus.Gauge

	// Submission pipeline
	submissions     *prometheus.CounterVec
	scoreMismatches *prometheus.CounterVec
	pipelineLatency prometheus.Histogram

	// Rate limiting
	rateLimitDecisions *prometheus.CounterVec
	rateLimitBuckets   *prometheus.GaugeVec

	// Ranking store
	rankingUpdates      *prometheus.CounterVec
	rankingErrors       prometheus.Counter
	rankingWriteLatency prometheus.Histogram
	rankingQueryLatency prometheus.Histogram
	rankingRecords      prometheus.Gauge

	// Persistence queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	queueEnqueueErrors      *prometheus.CounterVec
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "hanta",
		subsystem:        "scores",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.sessionsOpened = m.counterVec("sessions_opened_total", "Practice sessions opened, by mode", "mode")
	m.sessionsSwept = m.counter("sessions_swept_total", "Expired sessions removed by the sweep or lazily on lookup")
	m.sessionsActive = m.gauge("sessions_active", "Open practice sessions held in memory")

	m.submissions = m.counterVec("submissions_total", "Score submissions by outcome", "outcome")
	m.scoreMismatches = m.counterVec("score_mismatch_total", "Submissions whose client values disagree with the recomputation, by field", "field")
	m.pipelineLatency = m.histogram("pipeline_latency_milliseconds", "Validation pipeline latency in milliseconds", m.histogramBuckets)

	m.rateLimitDecisions = m.counterVec("ratelimit_decisions_total", "Rate limiter decisions by family and outcome", "family", "outcome")
	m.rateLimitBuckets = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "ratelimit_buckets", Help: "Live fixed-window buckets by family",
	}, []string{"family"})

	m.rankingUpdates = m.counterVec("ranking_updates_total", "Monthly best scores replaced, by mode", "mode")
	m.rankingErrors = m.counter("ranking_errors_total", "Ranking store write failures")
	m.rankingWriteLatency = m.histogram("ranking_write_latency_milliseconds", "Ranking store upsert latency in milliseconds", m.histogramBuckets)
	m.rankingQueryLatency = m.histogram("ranking_query_latency_milliseconds", "Ranking store query latency in milliseconds", m.histogramBuckets)
	m.rankingRecords = m.gauge("ranking_records", "Rows held by the ranking store")

	m.queueSize = m.gauge("queue_size", "Accepted records waiting to be persisted")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum persistence queue capacity")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Records enqueued for persistence")
	m.queueDequeued = m.counter("queue_dequeue_total", "Records dequeued by workers")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Records that could not be enqueued, by reason", "reason")
	m.workerCount = m.gauge("worker_count", "Persistence workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to persist one record in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Persistence worker failures")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_milliseconds", Help: "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordSessionOpened increments the opened-sessions counter for a mode.
func RecordSessionOpened(mode string) {
	globalManager.sessionsOpened.WithLabelValues(mode).Inc()
}

// RecordSessionsSwept adds n removed sessions.
func RecordSessionsSwept(n int) {
	globalManager.sessionsSwept.Add(float64(n))
}

// UpdateSessionsActive sets the open session gauge.
func UpdateSessionsActive(n int) {
	globalManager.sessionsActive.Set(float64(n))
}

// RecordSubmission counts a submission outcome (accepted, unauthorized, ...).
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordScoreMismatch counts a tolerance failure on one field.
func RecordScoreMismatch(field string) {
	globalManager.scoreMismatches.WithLabelValues(field).Inc()
}

// RecordPipelineLatency observes one pipeline run.
func RecordPipelineLatency(latencyMs float64) {
	globalManager.pipelineLatency.Observe(latencyMs)
}

// RecordRateLimitDecision counts an allow or deny for a bucket family.
func RecordRateLimitDecision(family string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	globalManager.rateLimitDecisions.WithLabelValues(family, outcome).Inc()
}

// UpdateRateLimitBuckets sets the live bucket gauge for a family.
func UpdateRateLimitBuckets(family string, n int) {
	globalManager.rateLimitBuckets.WithLabelValues(family).Set(float64(n))
}

// RecordRankingUpdate counts a replaced monthly best.
func RecordRankingUpdate(mode string) {
	globalManager.rankingUpdates.WithLabelValues(mode).Inc()
}

// RecordRankingError counts a failed ranking write.
func RecordRankingError() {
	globalManager.rankingErrors.Inc()
}

// RecordRankingWriteLatency observes one upsert.
func RecordRankingWriteLatency(latencyMs float64) {
	globalManager.rankingWriteLatency.Observe(latencyMs)
}

// RecordRankingQueryLatency observes one read.
func RecordRankingQueryLatency(latencyMs float64) {
	globalManager.rankingQueryLatency.Observe(latencyMs)
}

// UpdateRankingRecords sets the stored row gauge.
func UpdateRankingRecords(n int) {
	globalManager.rankingRecords.Set(float64(n))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
