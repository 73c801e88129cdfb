// Package queue provides the durable delayed job queue. The asynq-backed
// implementation is the default; an in-memory implementation exists for the
// explicit QUEUE_DISABLED mode and keeps the same interface with weaker
// guarantees (nothing survives a restart).
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	TaskTypePublishPost = "publish:post"
	TaskTypeSweepPosts  = "sweep:overdue"
)

const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

type PublishPayload struct {
	PostID int64 `json:"post_id"`
}

type SweepPayload struct {
	UserID int64 `json:"user_id,omitempty"`
	Manual bool  `json:"manual,omitempty"`
}

// Job is a unit of deferred work. Exactly one of Publish/Sweep is set,
// matching Kind. An empty ID means no deduplication.
type Job struct {
	ID          string
	Kind        string
	Publish     *PublishPayload
	Sweep       *SweepPayload
	Delay       time.Duration
	MaxAttempts int
	Queue       string
}

// PublishJobID is the deterministic per-post job key. It guarantees at most
// one in-flight publish job per post.
func PublishJobID(postID int64) string {
	return fmt.Sprintf("publish:post:%d", postID)
}

func NewPublishJob(postID int64, delay time.Duration, maxAttempts int) Job {
	return Job{
		ID:          PublishJobID(postID),
		Kind:        TaskTypePublishPost,
		Publish:     &PublishPayload{PostID: postID},
		Delay:       delay,
		MaxAttempts: maxAttempts,
		Queue:       QueueDefault,
	}
}

// NewManualSweepJob is an operator-triggered sweep, run ahead of regular
// publish jobs via the critical queue. It carries no dedup id so repeated
// triggers are allowed; the sweep itself is idempotent.
func NewManualSweepJob(userID int64) Job {
	return Job{
		Kind:  TaskTypeSweepPosts,
		Sweep: &SweepPayload{UserID: userID, Manual: true},
		Queue: QueueCritical,
	}
}

var (
	// ErrJobRunning is returned when an operation targets a job already
	// claimed by a worker. Such a job runs to completion; its result is
	// authoritative.
	ErrJobRunning = errors.New("queue: job is already running")
)

type JobQueue interface {
	// Enqueue registers a job invisible to workers until Delay elapses.
	// Enqueuing with an existing ID replaces the pending entry.
	Enqueue(ctx context.Context, job Job) error

	// EnqueueIfAbsent registers the job only when no entry with the same ID
	// exists. Reports whether the job was enqueued.
	EnqueueIfAbsent(ctx context.Context, job Job) (bool, error)

	// Remove deletes a pending job. Removing an unknown id is a no-op;
	// a running job is not affected and ErrJobRunning is returned.
	Remove(ctx context.Context, jobID string) error

	// Pending reports whether a job with the given id is waiting to run
	// (scheduled, queued, or in retry backoff).
	Pending(ctx context.Context, jobID string) (bool, error)
}
