package job

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/pagecast/pagecast/internal/models"
	qpkg "github.com/pagecast/pagecast/internal/queue"
	"github.com/pagecast/pagecast/internal/repository"
)

// DeadLetterReporter drains asynq's archive into the dead_letters table so
// exhausted publish jobs reach an operator instead of sitting silently in
// Redis. Recording also frees the deterministic job id, letting the post be
// rescheduled later.
type DeadLetterReporter struct {
	inspector *asynq.Inspector
	dl        repository.DeadLetterRepository
}

func NewDeadLetterReporter(inspector *asynq.Inspector, dl repository.DeadLetterRepository) *DeadLetterReporter {
	return &DeadLetterReporter{inspector: inspector, dl: dl}
}

func (r *DeadLetterReporter) Report() {
	ctx := context.Background()

	for _, queueName := range []string{qpkg.QueueDefault, qpkg.QueueCritical} {
		tasks, err := r.inspector.ListArchivedTasks(queueName)
		if err != nil {
			slog.Info(err.Error())
			continue
		}

		for _, task := range tasks {
			if task.Type != qpkg.TaskTypePublishPost {
				// Sweep jobs are not worth archiving; drop them.
				if err := r.inspector.DeleteTask(queueName, task.ID); err != nil {
					slog.Info(err.Error())
				}
				continue
			}

			var payload qpkg.PublishPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				slog.Info(err.Error())
				continue
			}

			dl := &models.DeadLetter{
				JobID:     task.ID,
				PostID:    payload.PostID,
				LastError: task.LastErr,
				Attempts:  task.Retried + 1,
			}
			if _, err := r.dl.Create(ctx, dl); err != nil {
				slog.Info(err.Error())
				continue
			}

			slog.Error("publish job dead-lettered",
				"job_id", task.ID,
				"post_id", payload.PostID,
				"attempts", dl.Attempts,
				"last_error", task.LastErr)

			if err := r.inspector.DeleteTask(queueName, task.ID); err != nil {
				slog.Info(err.Error())
			}
		}
	}
}

// RecordDirect persists a dead letter without going through asynq, used as
// the MemoryQueue dead-letter callback in queue-disabled mode.
func (r *DeadLetterReporter) RecordDirect(job qpkg.Job, attempts int, lastErr error) {
	if job.Kind != qpkg.TaskTypePublishPost || job.Publish == nil {
		return
	}
	dl := &models.DeadLetter{
		JobID:     job.ID,
		PostID:    job.Publish.PostID,
		LastError: lastErr.Error(),
		Attempts:  attempts,
	}
	if _, err := r.dl.Create(context.Background(), dl); err != nil {
		slog.Info(err.Error())
		return
	}
	slog.Error("publish job dead-lettered", "job_id", job.ID, "post_id", job.Publish.PostID, "attempts", attempts, "last_error", lastErr)
}
