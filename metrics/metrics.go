package metrics

import "sync/atomic"

// Metrics captures shared operational stats for the queue, workers, and the
// fusion pipeline.
type Metrics struct {
	queueLength   int64
	queueCapacity int64
	workerCount   int64

	processedJobs int64
	failedJobs    int64

	fusionRuns    int64
	eventsCreated int64
	aiCalls       int64
	aiFallbacks   int64
	mediaAnalyzed int64
}

// Snapshot provides a consistent view of the current metrics.
type Snapshot struct {
	QueueLength   int
	QueueCapacity int
	WorkerCount   int
	ProcessedJobs int64
	FailedJobs    int64
	FusionRuns    int64
	EventsCreated int64
	AICalls       int64
	AIFallbacks   int64
	MediaAnalyzed int64
}

// New creates a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

// UpdateQueue records the current queue stats.
func (m *Metrics) UpdateQueue(length, capacity, workers int) {
	atomic.StoreInt64(&m.queueLength, int64(length))
	atomic.StoreInt64(&m.queueCapacity, int64(capacity))
	atomic.StoreInt64(&m.workerCount, int64(workers))
}

// RecordJobCompletion increments processed/failed counters based on outcome.
func (m *Metrics) RecordJobCompletion(err error) {
	atomic.AddInt64(&m.processedJobs, 1)
	if err != nil {
		atomic.AddInt64(&m.failedJobs, 1)
	}
}

// RecordFusionRun counts one orchestrator invocation.
func (m *Metrics) RecordFusionRun() {
	atomic.AddInt64(&m.fusionRuns, 1)
}

// RecordEventsCreated counts events successfully persisted by a fusion run.
func (m *Metrics) RecordEventsCreated(n int) {
	atomic.AddInt64(&m.eventsCreated, int64(n))
}

// RecordAICall counts one generative-AI request; fallback marks whether the
// deterministic path had to take over.
func (m *Metrics) RecordAICall(fallback bool) {
	atomic.AddInt64(&m.aiCalls, 1)
	if fallback {
		atomic.AddInt64(&m.aiFallbacks, 1)
	}
}

// RecordMediaAnalyzed counts media items run through the analysis adapter.
func (m *Metrics) RecordMediaAnalyzed(n int) {
	atomic.AddInt64(&m.mediaAnalyzed, int64(n))
}

// Snapshot returns a read-only view of metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		QueueLength:   int(atomic.LoadInt64(&m.queueLength)),
		QueueCapacity: int(atomic.LoadInt64(&m.queueCapacity)),
		WorkerCount:   int(atomic.LoadInt64(&m.workerCount)),
		ProcessedJobs: atomic.LoadInt64(&m.processedJobs),
		FailedJobs:    atomic.LoadInt64(&m.failedJobs),
		FusionRuns:    atomic.LoadInt64(&m.fusionRuns),
		EventsCreated: atomic.LoadInt64(&m.eventsCreated),
		AICalls:       atomic.LoadInt64(&m.aiCalls),
		AIFallbacks:   atomic.LoadInt64(&m.aiFallbacks),
		MediaAnalyzed: atomic.LoadInt64(&m.mediaAnalyzed),
	}
}
