package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagecast/pagecast/internal/queue"
	"github.com/pagecast/pagecast/internal/repository"
)

// Sweeper reconciles the posts table against the queue: any post still
// scheduled past its deadline with no pending job gets one re-created.
// This is the crash/restart recovery path; in normal operation every
// overdue post already has a job and the sweep finds nothing to do.
type Sweeper struct {
	pr          repository.PostRepository
	q           queue.JobQueue
	maxAttempts int
	now         func() time.Time
}

func NewSweeper(pr repository.PostRepository, q queue.JobQueue, maxAttempts int) *Sweeper {
	return &Sweeper{pr: pr, q: q, maxAttempts: maxAttempts, now: time.Now}
}

// Sweep re-enqueues a publish job for every overdue post that has none.
// userID 0 sweeps all users. Returns the number of jobs created. The
// deterministic job id makes the whole pass idempotent: a second run right
// after the first enqueues nothing.
func (s *Sweeper) Sweep(ctx context.Context, userID int64) (int, error) {
	overdue, err := s.pr.ListOverdue(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("list overdue posts: %w", err)
	}

	requeued := 0
	for _, post := range overdue {
		job := queue.NewPublishJob(post.ID, 0, s.maxAttempts)
		created, err := s.q.EnqueueIfAbsent(ctx, job)
		if err != nil {
			return requeued, fmt.Errorf("re-enqueue post %d: %w", post.ID, err)
		}
		if created {
			requeued++
			slog.Warn("recovered overdue post", "post_id", post.ID, "scheduled_at", post.ScheduledAt)
		}
	}

	if requeued > 0 {
		slog.Info("overdue sweep complete", "checked", len(overdue), "requeued", requeued)
	}
	return requeued, nil
}

// RunRecurring adapts Sweep to the Recurring runner.
func (s *Sweeper) RunRecurring(ctx context.Context) error {
	_, err := s.Sweep(ctx, 0)
	return err
}
