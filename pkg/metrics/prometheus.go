// Package metrics provides Prometheus metrics for the smmbot daemon.
package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for action results.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultRejected  = "rejected"
)

// Manager manages all Prometheus metrics for the daemon.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Action pipeline
	actionsEnqueued *prometheus.CounterVec
	actionsExecuted *prometheus.CounterVec
	actionLatency   *prometheus.HistogramVec
	actionsDup      prometheus.Counter

	// Safety and scheduling
	safetyRejections  *prometheus.CounterVec
	safetySuspensions prometheus.Counter
	safetySuspended   prometheus.Gauge
	scheduleBreaks    prometheus.Counter
	scheduleActive    prometheus.Gauge
	scheduleTaskRuns  *prometheus.CounterVec

	// Queue and workers
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueueErrs prometheus.Counter
	workerCount      prometheus.Gauge
	workerErrors     prometheus.Counter

	// Accounts
	botAccounts *prometheus.GaugeVec
	members     prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "smmbot",
		subsystem:        "daemon",
		histogramBuckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 3000, 5000, 10000},
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels, Buckets: buckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.actionsEnqueued = auto.NewCounterVec(
		m.counterOpts("actions_enqueued_total", "Total number of actions accepted into the queue"),
		[]string{"platform", "action"},
	)
	m.actionsExecuted = auto.NewCounterVec(
		m.counterOpts("actions_executed_total", "Total number of actions that left the pipeline, by result"),
		[]string{"platform", "action", "result"},
	)
	m.actionLatency = auto.NewHistogramVec(
		m.histogramOpts("action_latency_milliseconds", "Platform driver latency in milliseconds", m.histogramBuckets),
		[]string{"platform"},
	)
	m.actionsDup = auto.NewCounter(m.counterOpts("actions_duplicate_total", "Total number of duplicate action submissions"))

	m.safetyRejections = auto.NewCounterVec(
		m.counterOpts("safety_rejections_total", "Total number of actions rejected by the safety monitor"),
		[]string{"reason"},
	)
	m.safetySuspensions = auto.NewCounter(m.counterOpts("safety_suspensions_total", "Total number of automatic suspensions"))
	m.safetySuspended = auto.NewGauge(m.gaugeOpts("safety_suspended", "1 while operations are suspended"))
	m.scheduleBreaks = auto.NewCounter(m.counterOpts("schedule_breaks_total", "Total number of scheduled breaks taken"))
	m.scheduleActive = auto.NewGauge(m.gaugeOpts("schedule_active", "1 while inside operating hours and not on a break"))
	m.scheduleTaskRuns = auto.NewCounterVec(
		m.counterOpts("schedule_task_runs_total", "Total number of scheduled task runs"),
		[]string{"task", "result"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the action queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueErrs = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of enqueue errors"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Current number of action workers"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of worker errors"))

	m.botAccounts = auto.NewGaugeVec(
		m.gaugeOpts("bot_accounts", "Bot accounts by platform and status"),
		[]string{"platform", "status"},
	)
	m.members = auto.NewGauge(m.gaugeOpts("members", "Number of registered members"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	))
}

// RecordActionEnqueued counts an accepted action.
func RecordActionEnqueued(platform, action string) {
	globalManager.actionsEnqueued.WithLabelValues(platform, action).Inc()
}

// RecordActionExecuted counts an action outcome; result is one of the Result* constants.
func RecordActionExecuted(platform, action, result string) {
	globalManager.actionsExecuted.WithLabelValues(platform, action, result).Inc()
}

// RecordActionLatency records driver latency in milliseconds.
func RecordActionLatency(platform string, latencyMs float64) {
	globalManager.actionLatency.WithLabelValues(platform).Observe(latencyMs)
}

// RecordActionDuplicate increments the duplicate submissions counter.
func RecordActionDuplicate() {
	globalManager.actionsDup.Inc()
}

// RecordSafetyRejection counts a rejected permit by reason.
func RecordSafetyRejection(reason string) {
	globalManager.safetyRejections.WithLabelValues(reason).Inc()
}

// RecordSafetySuspension counts an automatic suspension.
func RecordSafetySuspension() {
	globalManager.safetySuspensions.Inc()
}

// UpdateSafetySuspended flags whether operations are suspended.
func UpdateSafetySuspended(suspended bool) {
	globalManager.safetySuspended.Set(boolGauge(suspended))
}

// RecordScheduleBreak counts a break.
func RecordScheduleBreak() {
	globalManager.scheduleBreaks.Inc()
}

// UpdateScheduleActive flags whether the scheduler lets actions run.
func UpdateScheduleActive(active bool) {
	globalManager.scheduleActive.Set(boolGauge(active))
}

// RecordScheduleTaskRun counts one run of a scheduled task.
func RecordScheduleTaskRun(task string, ok bool) {
	result := ResultSucceeded
	if !ok {
		result = ResultFailed
	}
	globalManager.scheduleTaskRuns.WithLabelValues(task, result).Inc()
}

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

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrs.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateBotAccounts sets the number of bot accounts for a platform and status.
func UpdateBotAccounts(platform, status string, count int) {
	globalManager.botAccounts.WithLabelValues(platform, status).Set(float64(count))
}

// UpdateMembers sets the number of members.
func UpdateMembers(count int) {
	globalManager.members.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// CollectSystem samples runtime memory, goroutine and GC pause figures.
func CollectSystem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	globalManager.systemMemoryUsage.Set(float64(ms.HeapInuse))
	globalManager.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
	if ms.NumGC > 0 {
		last := ms.PauseNs[(ms.NumGC+255)%256]
		globalManager.systemGCPauseTime.Observe(float64(last) / 1e6)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
