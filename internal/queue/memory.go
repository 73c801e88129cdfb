package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Handler executes one released job. A nil return acknowledges the job;
// an error puts it back with backoff until MaxAttempts is exhausted.
type Handler func(ctx context.Context, job Job) error

// DeadLetterFunc is called when a job runs out of retries.
type DeadLetterFunc func(job Job, attempts int, lastErr error)

// MemoryQueue implements JobQueue with in-process timers. It is selected by
// the QUEUE_DISABLED flag for environments without Redis. Same interface,
// reduced guarantees: jobs are lost on process exit and at-least-once
// delivery does not hold across restarts.
type MemoryQueue struct {
	mu        sync.Mutex
	entries   map[string]*memEntry
	handler   Handler
	onDead    DeadLetterFunc
	retryBase time.Duration
	sem       chan struct{}
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
}

type memEntry struct {
	job     Job
	attempt int
	timer   *time.Timer
	running bool
}

// NewMemoryQueue bounds handler execution to workers concurrent jobs, the
// same pool size the durable mode gives its asynq server.
func NewMemoryQueue(retryBase time.Duration, workers int) *MemoryQueue {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		entries:   make(map[string]*memEntry),
		retryBase: retryBase,
		sem:       make(chan struct{}, workers),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the handler and begins releasing due jobs. Jobs enqueued
// before Start fire once Start has been called.
func (q *MemoryQueue) Start(handler Handler, onDead DeadLetterFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
	q.onDead = onDead
	q.started = true
	for id, e := range q.entries {
		if e.timer == nil {
			q.arm(id, e, e.job.Delay)
		}
	}
}

// Stop cancels all pending timers and waits for running handlers.
func (q *MemoryQueue) Stop() {
	q.mu.Lock()
	q.cancel()
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	q.entries = make(map[string]*memEntry)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueLocked(job)
}

// enqueueLocked must be called with q.mu held.
func (q *MemoryQueue) enqueueLocked(job Job) error {
	id := job.ID
	if id == "" {
		suffix, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("queue: generate job id: %w", err)
		}
		id = job.Kind + ":" + suffix
	}

	if prev, ok := q.entries[id]; ok {
		if prev.running {
			return ErrJobRunning
		}
		if prev.timer != nil {
			prev.timer.Stop()
		}
	}

	e := &memEntry{job: job}
	q.entries[id] = e
	if q.started {
		q.arm(id, e, job.Delay)
	}
	return nil
}

func (q *MemoryQueue) EnqueueIfAbsent(ctx context.Context, job Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.ID != "" {
		if _, ok := q.entries[job.ID]; ok {
			return false, nil
		}
	}
	if err := q.enqueueLocked(job); err != nil {
		return false, err
	}
	return true, nil
}

func (q *MemoryQueue) Remove(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[jobID]
	if !ok {
		return nil
	}
	if e.running {
		return ErrJobRunning
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(q.entries, jobID)
	return nil
}

func (q *MemoryQueue) Pending(ctx context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[jobID]
	return ok, nil
}

// arm must be called with q.mu held.
func (q *MemoryQueue) arm(id string, e *memEntry, delay time.Duration) {
	e.timer = time.AfterFunc(delay, func() {
		q.fire(id)
	})
}

func (q *MemoryQueue) fire(id string) {
	q.mu.Lock()
	e, ok := q.entries[id]
	if !ok || e.running || q.ctx.Err() != nil {
		q.mu.Unlock()
		return
	}
	e.running = true
	handler := q.handler
	// Under the lock so Stop's Wait cannot slip past a fired-but-unstarted
	// job.
	q.wg.Add(1)
	q.mu.Unlock()

	defer q.wg.Done()

	select {
	case q.sem <- struct{}{}:
	case <-q.ctx.Done():
		return
	}
	defer func() { <-q.sem }()

	err := handler(q.ctx, e.job)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return
	}

	if err == nil {
		delete(q.entries, id)
		return
	}

	e.attempt++
	if e.attempt >= e.job.MaxAttempts {
		delete(q.entries, id)
		slog.Warn("job dead-lettered", "id", id, "attempts", e.attempt, "error", err)
		if q.onDead != nil {
			q.onDead(e.job, e.attempt, err)
		}
		return
	}

	backoff := q.retryBase << (e.attempt - 1)
	e.running = false
	q.arm(id, e, backoff)
	slog.Info("job retry scheduled", "id", id, "attempt", e.attempt, "backoff", backoff)
}
