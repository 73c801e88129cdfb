// Package publisher runs the per-target batch publish for one post and
// derives the post's aggregate status from the per-target outcomes.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pagecast/pagecast/internal/models"
	"github.com/pagecast/pagecast/internal/platform"
	"github.com/pagecast/pagecast/internal/repository"
)

var (
	ErrPostNotFound = errors.New("publisher: post not found")

	// ErrNotDue marks a job delivered ahead of the post's scheduled time.
	// The queue retries it instead of publishing early.
	ErrNotDue = errors.New("publisher: post not due yet")

	// ErrNotPublishable is returned by PublishImmediate when the post is
	// already published or mid-flight.
	ErrNotPublishable = errors.New("publisher: post cannot be published in its current status")
)

// IsTransient reports whether a publish-run error should trigger a
// queue-level retry. Anything but a definitively permanent condition is
// retried; per-target failures never surface here, they land on the rows.
func IsTransient(err error) bool {
	return !errors.Is(err, ErrPostNotFound) && !errors.Is(err, ErrNotPublishable)
}

// MediaResolver turns stored media refs into URLs the platform can fetch.
type MediaResolver interface {
	ResolveURLs(ctx context.Context, refs []string) ([]string, error)
}

type TargetResult struct {
	PostTargetID int64  `json:"post_target_id"`
	TargetID     int64  `json:"target_id"`
	AccountName  string `json:"account_name,omitempty"`
	Status       string `json:"status"`
	RemoteID     string `json:"remote_id,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CommentID    string `json:"comment_id,omitempty"`
	CommentError string `json:"comment_error,omitempty"`
}

type BatchResult struct {
	PostID      int64          `json:"post_id"`
	Status      string         `json:"status"`
	Total       int            `json:"total"`
	Successful  int            `json:"successful"`
	Failed      int            `json:"failed"`
	Targets     []TargetResult `json:"targets"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`

	// Skipped means the post was no longer in a publishable state and the
	// run made no external calls.
	Skipped bool `json:"-"`
}

type BatchPublisher struct {
	pr repository.PostRepository
	pt repository.PostTargetRepository
	tr repository.TargetRepository
	tp TargetPublisher
	mr MediaResolver

	interCallDelay time.Duration
	now            func() time.Time
	sleep          func(time.Duration) // overridable in tests
}

func NewBatchPublisher(
	pr repository.PostRepository,
	pt repository.PostTargetRepository,
	tr repository.TargetRepository,
	tp TargetPublisher,
	mr MediaResolver,
	interCallDelay time.Duration) *BatchPublisher {
	return &BatchPublisher{
		pr:             pr,
		pt:             pt,
		tr:             tr,
		tp:             tp,
		mr:             mr,
		interCallDelay: interCallDelay,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// PublishScheduled is the worker entry point for a released queue job.
// Duplicate deliveries are resolved here: a post no longer in scheduled
// status is acknowledged without side effects.
func (b *BatchPublisher) PublishScheduled(ctx context.Context, postID int64) (*BatchResult, error) {
	post, err := b.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil {
		return nil, ErrPostNotFound
	}

	if post.Status != models.PostStatusScheduled {
		return &BatchResult{PostID: postID, Status: post.Status, Skipped: true}, nil
	}

	if post.ScheduledAt != nil && b.now().Before(*post.ScheduledAt) {
		return nil, fmt.Errorf("%w: due at %s", ErrNotDue, post.ScheduledAt.Format(time.RFC3339))
	}

	return b.run(ctx, post)
}

// PublishImmediate publishes out-of-band of the queue, for the publish-now
// operation. Draft and scheduled posts qualify; the due-time check does not
// apply.
func (b *BatchPublisher) PublishImmediate(ctx context.Context, postID int64) (*BatchResult, error) {
	post, err := b.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("load post %d: %w", postID, err)
	}
	if post == nil {
		return nil, ErrPostNotFound
	}

	if post.Status != models.PostStatusDraft && post.Status != models.PostStatusScheduled {
		return nil, fmt.Errorf("%w: %s", ErrNotPublishable, post.Status)
	}

	return b.run(ctx, post)
}

func (b *BatchPublisher) run(ctx context.Context, post *models.Post) (*BatchResult, error) {
	runID, _ := gonanoid.New()
	log := slog.With("post_id", post.ID, "run_id", runID)

	postTargets, err := b.pt.ListByPostID(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("load targets for post %d: %w", post.ID, err)
	}
	if len(postTargets) == 0 {
		return nil, fmt.Errorf("post %d has no targets", post.ID)
	}

	// Persisted before any external call, so a crash mid-publish is
	// observable and repairable.
	if err := b.pr.UpdateStatus(ctx, post.ID, models.PostStatusPublishing); err != nil {
		return nil, fmt.Errorf("mark post %d publishing: %w", post.ID, err)
	}

	mediaURLs, err := b.mr.ResolveURLs(ctx, post.MediaRefs)
	if err != nil {
		// Nothing has been attempted yet; put the post back so the retry
		// is indistinguishable from a fresh delivery.
		if rbErr := b.pr.UpdateStatus(ctx, post.ID, post.Status); rbErr != nil {
			log.Error("failed to restore post status", "error", rbErr)
		}
		return nil, fmt.Errorf("resolve media for post %d: %w", post.ID, err)
	}

	content := platform.PostContent{
		Text:      post.Content,
		Title:     post.Title,
		MediaURLs: mediaURLs,
	}

	result := &BatchResult{PostID: post.ID, Total: len(postTargets)}

	// Sequential on purpose: one post fans out to many targets, and the
	// external API rate limits per account.
	for i, pt := range postTargets {
		if i > 0 {
			b.sleep(b.interCallDelay)
		}
		tr := b.publishOne(ctx, log, pt, content)
		if tr.Status == models.TargetStatusPublished {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Targets = append(result.Targets, tr)
	}

	result.Status = aggregateStatus(result.Successful, result.Total)
	if result.Successful > 0 {
		now := b.now()
		result.PublishedAt = &now
	}

	if err := b.pr.SetPublishResult(ctx, post.ID, result.Status, result.PublishedAt); err != nil {
		return nil, fmt.Errorf("persist result for post %d: %w", post.ID, err)
	}

	if post.FirstComment != "" && result.Successful > 0 {
		b.commentOnSuccesses(ctx, log, post, result)
	}

	log.Info("batch publish complete", "status", result.Status, "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

func (b *BatchPublisher) publishOne(ctx context.Context, log *slog.Logger, pt *models.PostTarget, content platform.PostContent) TargetResult {
	tr := TargetResult{PostTargetID: pt.ID, TargetID: pt.TargetID}

	if err := b.pt.MarkPublishing(ctx, pt.ID); err != nil {
		log.Error("failed to mark target publishing", "target_id", pt.TargetID, "error", err)
	}

	target, err := b.tr.GetByID(ctx, pt.TargetID)
	if err == nil && target == nil {
		err = fmt.Errorf("target %d not found", pt.TargetID)
	}

	var remoteID string
	if err == nil {
		tr.AccountName = target.AccountName
		remoteID, err = b.tp.Publish(ctx, target, content)
	}

	if err != nil {
		tr.Status = models.TargetStatusFailed
		tr.ErrorMessage = err.Error()
		var pe *platform.Error
		if errors.As(err, &pe) {
			tr.ErrorCode = pe.Code
			tr.ErrorMessage = pe.Message
		}
		log.Warn("target publish failed", "target_id", pt.TargetID, "code", tr.ErrorCode, "error", tr.ErrorMessage)
		if dbErr := b.pt.MarkFailed(ctx, pt.ID, tr.ErrorCode, tr.ErrorMessage); dbErr != nil {
			log.Error("failed to record target failure", "target_id", pt.TargetID, "error", dbErr)
		}
		return tr
	}

	tr.Status = models.TargetStatusPublished
	tr.RemoteID = remoteID
	if dbErr := b.pt.MarkPublished(ctx, pt.ID, remoteID); dbErr != nil {
		log.Error("failed to record target success", "target_id", pt.TargetID, "error", dbErr)
	}
	return tr
}

// commentOnSuccesses posts the configured first comment under each target
// that published. Best effort: failures are recorded on the row and never
// change any publish status.
func (b *BatchPublisher) commentOnSuccesses(ctx context.Context, log *slog.Logger, post *models.Post, result *BatchResult) {
	for i := range result.Targets {
		tr := &result.Targets[i]
		if tr.Status != models.TargetStatusPublished {
			continue
		}

		target, err := b.tr.GetByID(ctx, tr.TargetID)
		if err == nil && target == nil {
			err = fmt.Errorf("target %d not found", tr.TargetID)
		}

		var commentID string
		if err == nil {
			commentID, err = b.tp.Comment(ctx, target, tr.RemoteID, post.FirstComment)
		}

		if err != nil {
			tr.CommentError = err.Error()
			log.Warn("first comment failed", "target_id", tr.TargetID, "error", err)
		} else {
			tr.CommentID = commentID
		}

		if dbErr := b.pt.SetCommentResult(ctx, tr.PostTargetID, tr.CommentID, tr.CommentError); dbErr != nil {
			log.Error("failed to record comment result", "target_id", tr.TargetID, "error", dbErr)
		}
	}
}

func aggregateStatus(successful, total int) string {
	switch successful {
	case 0:
		return models.PostStatusFailed
	case total:
		return models.PostStatusPublished
	default:
		return models.PostStatusPartialSuccess
	}
}
