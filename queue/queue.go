// Package queue provides the bounded in-process worker pool behind the
// fire-and-forget pipeline triggers: fusion runs kicked off after media
// analysis and any other background work the API surface defers.
package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"nextsignal/metrics"
)

// Job kinds used by the pipeline.
const (
	KindFusion = "fusion"
	KindMedia  = "media"
)

// Job encapsulates a unit of deferred pipeline work.
type Job struct {
	ID       string
	Kind     string
	Work     func(context.Context) error
	OnFinish func(error)
}

// Queue is a bounded job queue with a fixed worker pool. Completed jobs and
// queue depth are reported into the shared metrics.
type Queue struct {
	jobs        chan Job
	workerCount int
	timeout     time.Duration
	metrics     *metrics.Metrics
	started     bool
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// New creates a Queue with the provided capacity, worker count, and per-job
// timeout.
func New(capacity, workerCount int, timeout time.Duration, m *metrics.Metrics) *Queue {
	return &Queue{
		jobs:        make(chan Job, capacity),
		workerCount: workerCount,
		timeout:     timeout,
		metrics:     m,
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()
	q.metrics.UpdateQueue(0, cap(q.jobs), q.workerCount)
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue attempts to queue a job without blocking. Returns false if the
// queue is full or not started.
func (q *Queue) Enqueue(j Job) bool {
	return q.tryEnqueue(j, true)
}

// EnqueueWithRetry attempts to queue a job with a bounded retry window.
// Returns (enqueued, droppedFull).
func (q *Queue) EnqueueWithRetry(ctx context.Context, j Job, window, interval time.Duration) (bool, bool) {
	deadline := time.Now().Add(window)
	if q.tryEnqueue(j, false) {
		return true, false
	}
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, false
		case <-time.After(interval):
			if q.tryEnqueue(j, false) {
				return true, false
			}
		}
	}
	return false, true
}

func (q *Queue) tryEnqueue(j Job, logDrop bool) bool {
	q.mu.RLock()
	started := q.started
	q.mu.RUnlock()
	if !started {
		if logDrop {
			log.Printf("enqueue called before queue started for %s job %s", j.Kind, j.ID)
		}
		return false
	}
	select {
	case q.jobs <- j:
		q.metrics.UpdateQueue(len(q.jobs), cap(q.jobs), q.workerCount)
		return true
	default:
		if logDrop {
			log.Printf("job queue full, dropping %s job %s", j.Kind, j.ID)
		}
		return false
	}
}

// Stop stops accepting new jobs and waits for workers to drain until the
// context is done.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	if q.jobs != nil {
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q.jobs:
			if !ok {
				return
			}
			q.handleJob(ctx, j)
		}
	}
}

func (q *Queue) handleJob(ctx context.Context, j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s job %s panic recovered: %v", j.Kind, j.ID, r)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, q.timeout)
	err := j.Work(jobCtx)
	cancel()
	if j.OnFinish != nil {
		j.OnFinish(err)
	}
	q.metrics.RecordJobCompletion(err)
	q.metrics.UpdateQueue(len(q.jobs), cap(q.jobs), q.workerCount)
	status := "success"
	if err != nil {
		status = err.Error()
	}
	log.Printf("job_kind=%s job=%s duration_ms=%d status=%s", j.Kind, j.ID, time.Since(start).Milliseconds(), status)
}

// Stats exposes the live queue state.
type Stats struct {
	Length      int `json:"length"`
	Capacity    int `json:"capacity"`
	WorkerCount int `json:"workerCount"`
}

// Stats returns the current queue depth and sizing.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	length := 0
	if q.jobs != nil {
		length = len(q.jobs)
	}
	return Stats{Length: length, Capacity: cap(q.jobs), WorkerCount: q.workerCount}
}

// Healthy returns true if the queue has been started.
func (q *Queue) Healthy() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.started
}
