package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/pagecast/pagecast/internal/publisher"
)

// PostPublisher runs the per-target publish loop for one due post.
type PostPublisher interface {
	PublishScheduled(ctx context.Context, postID int64) (*publisher.BatchResult, error)
}

// OverdueSweeper re-enqueues scheduled posts whose deadline passed without a
// pending job.
type OverdueSweeper interface {
	Sweep(ctx context.Context, userID int64) (int, error)
}

// Worker translates released jobs into publisher/sweeper calls. The same
// methods back the asynq handlers and the in-memory queue handler, so both
// modes share one execution path.
type Worker struct {
	pub   PostPublisher
	sweep OverdueSweeper
}

func NewWorker(pub PostPublisher, sweep OverdueSweeper) *Worker {
	return &Worker{pub: pub, sweep: sweep}
}

func (w *Worker) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal publish payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.ProcessPublish(ctx, payload); err != nil {
		if !publisher.IsTransient(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

func (w *Worker) HandleSweepTask(ctx context.Context, task *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal sweep payload: %v: %w", err, asynq.SkipRetry)
	}
	return w.ProcessSweep(ctx, payload)
}

// ProcessPublish executes one publish job. A nil return acknowledges the
// job: terminal aggregates (published, partial_success, failed) are all
// success from the queue's point of view. Only transient errors raised
// before any target result is known propagate for a queue-level retry.
func (w *Worker) ProcessPublish(ctx context.Context, payload PublishPayload) error {
	result, err := w.pub.PublishScheduled(ctx, payload.PostID)
	if err != nil {
		if errors.Is(err, publisher.ErrPostNotFound) {
			slog.Warn("publish job for missing post acknowledged", "post_id", payload.PostID)
			return nil
		}
		return err
	}

	if result.Skipped {
		slog.Info("publish job skipped, post no longer scheduled", "post_id", payload.PostID, "status", result.Status)
		return nil
	}

	slog.Info("post publish finished",
		"post_id", payload.PostID,
		"status", result.Status,
		"successful", result.Successful,
		"failed", result.Failed)
	return nil
}

func (w *Worker) ProcessSweep(ctx context.Context, payload SweepPayload) error {
	n, err := w.sweep.Sweep(ctx, payload.UserID)
	if err != nil {
		return err
	}
	if payload.Manual {
		slog.Info("manual sweep finished", "user_id", payload.UserID, "requeued", n)
	}
	return nil
}

// HandleJob adapts Worker to the MemoryQueue handler signature.
func (w *Worker) HandleJob(ctx context.Context, job Job) error {
	switch job.Kind {
	case TaskTypePublishPost:
		if job.Publish == nil {
			return fmt.Errorf("queue: publish job %q has no payload", job.ID)
		}
		err := w.ProcessPublish(ctx, *job.Publish)
		if err != nil && !publisher.IsTransient(err) {
			slog.Error("publish job failed permanently", "post_id", job.Publish.PostID, "error", err)
			return nil
		}
		return err
	case TaskTypeSweepPosts:
		if job.Sweep == nil {
			return fmt.Errorf("queue: sweep job %q has no payload", job.ID)
		}
		return w.ProcessSweep(ctx, *job.Sweep)
	default:
		return fmt.Errorf("queue: unknown job kind %q", job.Kind)
	}
}
