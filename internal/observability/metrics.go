package observability

import "sync"

// Metrics provides counters, gauges, and histogram recording primitives.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

var defaultMetrics Metrics = noopMetrics{}

// SetMetrics overrides the global metrics implementation used by the system.
func SetMetrics(metrics Metrics) {
	if metrics == nil {
		defaultMetrics = noopMetrics{}
		return
	}
	defaultMetrics = metrics
}

// Telemetry returns the current global metrics collector.
func Telemetry() Metrics {
	return defaultMetrics
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)       {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)         {}

// QueueMetricsSnapshot captures job-queue-focused runtime counters.
type QueueMetricsSnapshot struct {
	QueueDepth   map[string]int `json:"queue_depth"`
	JobsInFlight map[string]int `json:"jobs_in_flight"`
	RetriesTotal map[string]int `json:"retries_total"`
}

// RuntimeMetrics accumulates job-queue metrics in-memory for periodic export.
type RuntimeMetrics struct {
	mu    sync.Mutex
	queue QueueMetricsSnapshot
}

// NewRuntimeMetrics constructs a metrics accumulator with empty maps.
func NewRuntimeMetrics() *RuntimeMetrics {
	metrics := new(RuntimeMetrics)
	metrics.queue = QueueMetricsSnapshot{
		QueueDepth:   make(map[string]int),
		JobsInFlight: make(map[string]int),
		RetriesTotal: make(map[string]int),
	}
	return metrics
}

// RecordQueueDepth tracks the latest pending-job count for a stream key.
func (m *RuntimeMetrics) RecordQueueDepth(stream string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue.QueueDepth[stream] = depth
}

// RecordJobsInFlight tracks the latest leased-but-unacked job count for a stream key.
func (m *RuntimeMetrics) RecordJobsInFlight(stream string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue.JobsInFlight[stream] = count
}

// IncrementRetries increments the retry counter for a stream.
func (m *RuntimeMetrics) IncrementRetries(stream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue.RetriesTotal[stream]++
}

// Snapshot copies the current queue metrics state for reporting.
func (m *RuntimeMetrics) Snapshot() QueueMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := QueueMetricsSnapshot{
		QueueDepth:   make(map[string]int, len(m.queue.QueueDepth)),
		JobsInFlight: make(map[string]int, len(m.queue.JobsInFlight)),
		RetriesTotal: make(map[string]int, len(m.queue.RetriesTotal)),
	}
	for k, v := range m.queue.QueueDepth {
		snapshot.QueueDepth[k] = v
	}
	for k, v := range m.queue.JobsInFlight {
		snapshot.JobsInFlight[k] = v
	}
	for k, v := range m.queue.RetriesTotal {
		snapshot.RetriesTotal[k] = v
	}
	return snapshot
}
