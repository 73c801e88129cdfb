package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// AsynqQueue is the durable JobQueue backed by Redis via asynq. Job ids map
// to asynq task ids, which is what enforces the one-in-flight-job-per-post
// guarantee.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewAsynqQueue(client *asynq.Client, inspector *asynq.Inspector) *AsynqQueue {
	return &AsynqQueue{client: client, inspector: inspector}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID != "" {
		// Replace semantics: drop any previous entry for this id first.
		if err := q.Remove(ctx, job.ID); err != nil {
			return err
		}
	}
	return q.enqueue(ctx, job)
}

func (q *AsynqQueue) EnqueueIfAbsent(ctx context.Context, job Job) (bool, error) {
	err := q.enqueue(ctx, job)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (q *AsynqQueue) enqueue(ctx context.Context, job Job) error {
	var payload any
	switch job.Kind {
	case TaskTypePublishPost:
		payload = job.Publish
	case TaskTypeSweepPosts:
		payload = job.Sweep
	default:
		return fmt.Errorf("queue: unknown job kind %q", job.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal %s payload: %w", job.Kind, err)
	}

	// asynq counts retries after the first attempt; MaxAttempts counts the
	// first attempt too.
	maxRetry := job.MaxAttempts - 1
	if maxRetry < 0 {
		maxRetry = 0
	}
	opts := []asynq.Option{
		asynq.ProcessIn(job.Delay),
		asynq.MaxRetry(maxRetry),
	}
	if job.ID != "" {
		opts = append(opts, asynq.TaskID(job.ID))
	}
	if job.Queue != "" {
		opts = append(opts, asynq.Queue(job.Queue))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(job.Kind, raw), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return err
		}
		return fmt.Errorf("queue: enqueue %s: %w", job.Kind, err)
	}

	slog.Info("job enqueued", "id", info.ID, "type", job.Kind, "queue", info.Queue, "delay", job.Delay)
	return nil
}

func (q *AsynqQueue) Remove(ctx context.Context, jobID string) error {
	for _, queueName := range []string{QueueDefault, QueueCritical} {
		info, err := q.inspector.GetTaskInfo(queueName, jobID)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return fmt.Errorf("queue: inspect %s: %w", jobID, err)
		}
		if info.State == asynq.TaskStateActive {
			return ErrJobRunning
		}
		if err := q.inspector.DeleteTask(queueName, jobID); err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) {
				continue
			}
			return fmt.Errorf("queue: delete %s: %w", jobID, err)
		}
	}
	return nil
}

func (q *AsynqQueue) Pending(ctx context.Context, jobID string) (bool, error) {
	for _, queueName := range []string{QueueDefault, QueueCritical} {
		info, err := q.inspector.GetTaskInfo(queueName, jobID)
		if err != nil {
			if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			return false, fmt.Errorf("queue: inspect %s: %w", jobID, err)
		}
		switch info.State {
		case asynq.TaskStateScheduled, asynq.TaskStatePending, asynq.TaskStateRetry, asynq.TaskStateActive:
			return true, nil
		}
	}
	return false, nil
}
