package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/pagecast/pagecast/configs"
	"github.com/pagecast/pagecast/internal/models"
	"github.com/pagecast/pagecast/internal/publisher"
	"github.com/pagecast/pagecast/internal/queue"
	"github.com/pagecast/pagecast/internal/repository"
)

type PostDetail struct {
	Post    *models.Post         `json:"post"`
	Targets []*models.PostTarget `json:"targets"`
}

// ImmediatePublisher is the out-of-band publish entry point, satisfied by
// publisher.BatchPublisher.
type ImmediatePublisher interface {
	PublishImmediate(ctx context.Context, postID int64) (*publisher.BatchResult, error)
}

type ScheduleService interface {
	Schedule(ctx context.Context, userID, postID int64, at time.Time) (warning string, err error)
	Unschedule(ctx context.Context, userID, postID int64) error
	Reschedule(ctx context.Context, userID, postID int64, newAt time.Time) (warning string, err error)
	PublishNow(ctx context.Context, userID, postID int64) (*publisher.BatchResult, error)
	PostInfo(ctx context.Context, userID, postID int64) (*PostDetail, error)
}

type scheduleService struct {
	pr  repository.PostRepository
	pt  repository.PostTargetRepository
	q   queue.JobQueue
	bp  ImmediatePublisher
	cfg config.Config
	now func() time.Time
}

func NewScheduleService(
	pr repository.PostRepository,
	pt repository.PostTargetRepository,
	q queue.JobQueue,
	bp ImmediatePublisher,
	cfg config.Config) ScheduleService {
	return &scheduleService{
		pr:  pr,
		pt:  pt,
		q:   q,
		bp:  bp,
		cfg: cfg,
		now: time.Now,
	}
}

// Schedule validates the time, writes the scheduled state, and enqueues the
// publish job. If the process dies between the database commit and the
// enqueue, the overdue sweep repairs the gap; this method does not try to.
func (s *scheduleService) Schedule(ctx context.Context, userID, postID int64, at time.Time) (string, error) {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return "", err
	}

	warning, err := s.validateTime(at)
	if err != nil {
		return "", err
	}

	switch post.Status {
	case models.PostStatusDraft, models.PostStatusScheduled, models.PostStatusFailed:
	default:
		return "", ErrAlreadyPublished
	}

	if err := s.writeScheduled(ctx, postID, at); err != nil {
		return "", err
	}

	// Replace semantics on the deterministic job id make this idempotent:
	// any prior job for the post is dropped.
	job := queue.NewPublishJob(postID, at.Sub(s.now()), s.cfg.PublishMaxRetry)
	if err := s.q.Enqueue(ctx, job); err != nil {
		if errors.Is(err, queue.ErrJobRunning) {
			return "", fmt.Errorf("post %d is being published right now: %w", postID, err)
		}
		return "", fmt.Errorf("enqueue publish job: %w", err)
	}

	slog.Info("post scheduled", "post_id", postID, "scheduled_at", at)
	return warning, nil
}

func (s *scheduleService) Unschedule(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}

	if err := s.q.Remove(ctx, queue.PublishJobID(postID)); err != nil {
		if errors.Is(err, queue.ErrJobRunning) {
			// The in-flight run wins; it re-checks the post status
			// before publishing, and the reset below makes it a no-op.
			slog.Warn("unschedule raced a running publish job", "post_id", postID)
		} else {
			return fmt.Errorf("remove publish job: %w", err)
		}
	}

	if err := s.pr.ResetToDraft(ctx, postID); err != nil {
		return fmt.Errorf("reset post %d: %w", postID, err)
	}

	slog.Info("post unscheduled", "post_id", postID, "previous_status", post.Status)
	return nil
}

func (s *scheduleService) Reschedule(ctx context.Context, userID, postID int64, newAt time.Time) (string, error) {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return "", err
	}

	if post.Status != models.PostStatusScheduled {
		return "", &NotScheduledError{PostID: postID, Status: post.Status}
	}

	warning, err := s.validateTime(newAt)
	if err != nil {
		return "", err
	}

	if err := s.writeScheduled(ctx, postID, newAt); err != nil {
		return "", err
	}

	job := queue.NewPublishJob(postID, newAt.Sub(s.now()), s.cfg.PublishMaxRetry)
	if err := s.q.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue publish job: %w", err)
	}

	slog.Info("post rescheduled", "post_id", postID, "scheduled_at", newAt)
	return warning, nil
}

// PublishNow runs the batch publisher synchronously, out-of-band of the
// queue. Any pending job for the post is dropped first so the deadline run
// cannot double-publish.
func (s *scheduleService) PublishNow(ctx context.Context, userID, postID int64) (*publisher.BatchResult, error) {
	if _, err := s.ownedPost(ctx, userID, postID); err != nil {
		return nil, err
	}

	if err := s.q.Remove(ctx, queue.PublishJobID(postID)); err != nil {
		if errors.Is(err, queue.ErrJobRunning) {
			return nil, fmt.Errorf("post %d is being published right now: %w", postID, err)
		}
		return nil, fmt.Errorf("remove publish job: %w", err)
	}

	result, err := s.bp.PublishImmediate(ctx, postID)
	if err != nil {
		if errors.Is(err, publisher.ErrNotPublishable) {
			return nil, ErrAlreadyPublished
		}
		return nil, err
	}
	return result, nil
}

func (s *scheduleService) PostInfo(ctx context.Context, userID, postID int64) (*PostDetail, error) {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	targets, err := s.pt.ListByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("list targets for post %d: %w", postID, err)
	}

	return &PostDetail{Post: post, Targets: targets}, nil
}

func (s *scheduleService) ownedPost(ctx context.Context, userID, postID int64) (*models.Post, error) {
	if userID != 0 {
		ok, err := s.pr.CheckByUserID(ctx, postID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrPostNotFound
		}
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// validateTime enforces the hard rules (future, within horizon) and returns
// a soft warning when the time falls outside the business-hours window.
func (s *scheduleService) validateTime(at time.Time) (string, error) {
	now := s.now()
	if !at.After(now) {
		return "", ErrPastSchedule
	}

	horizon := now.AddDate(0, 0, s.cfg.ScheduleHorizonDays)
	if at.After(horizon) {
		return "", &BeyondHorizonError{HorizonDays: s.cfg.ScheduleHorizonDays}
	}

	hour := at.Hour()
	if hour < s.cfg.BusinessHoursStart || hour >= s.cfg.BusinessHoursEnd {
		return fmt.Sprintf("scheduled time is outside business hours (%02d:00-%02d:00)",
			s.cfg.BusinessHoursStart, s.cfg.BusinessHoursEnd), nil
	}
	return "", nil
}

func (s *scheduleService) writeScheduled(ctx context.Context, postID int64, at time.Time) error {
	if err := s.pr.SetScheduledState(ctx, postID, at); err != nil {
		return fmt.Errorf("schedule post %d: %w", postID, err)
	}
	return nil
}
