package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecast/pagecast/internal/models"
	"github.com/pagecast/pagecast/internal/platform"
)

type fakePostRepo struct {
	posts         map[int64]*models.Post
	statusUpdates []string
	resultStatus  string
	resultTime    *time.Time
}

func (f *fakePostRepo) GetByID(_ context.Context, id int64) (*models.Post, error) {
	return f.posts[id], nil
}

func (f *fakePostRepo) Create(context.Context, *sql.Tx, *models.Post) (int64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakePostRepo) CheckByUserID(context.Context, int64, int64) (bool, error) {
	return true, nil
}

func (f *fakePostRepo) UpdateStatus(_ context.Context, postID int64, status string) error {
	f.statusUpdates = append(f.statusUpdates, status)
	if p, ok := f.posts[postID]; ok {
		p.Status = status
	}
	return nil
}

func (f *fakePostRepo) SetScheduledState(context.Context, int64, time.Time) error {
	return errors.New("not implemented")
}

func (f *fakePostRepo) ResetToDraft(context.Context, int64) error {
	return errors.New("not implemented")
}

func (f *fakePostRepo) SetPublishResult(_ context.Context, postID int64, status string, publishedAt *time.Time) error {
	f.resultStatus = status
	f.resultTime = publishedAt
	if p, ok := f.posts[postID]; ok {
		p.Status = status
		p.PublishedAt = publishedAt
	}
	return nil
}

func (f *fakePostRepo) ListOverdue(context.Context, int64, time.Time) ([]*models.Post, error) {
	return nil, nil
}

func (f *fakePostRepo) Remove(context.Context, int64) error { return nil }

type targetRow struct {
	status       string
	remoteID     string
	errorCode    string
	errorMessage string
	commentID    string
	commentError string
}

type fakePostTargetRepo struct {
	targets []*models.PostTarget
	rows    map[int64]*targetRow
}

func newFakePostTargetRepo(targets ...*models.PostTarget) *fakePostTargetRepo {
	f := &fakePostTargetRepo{targets: targets, rows: make(map[int64]*targetRow)}
	for _, pt := range targets {
		f.rows[pt.ID] = &targetRow{status: pt.Status}
	}
	return f
}

func (f *fakePostTargetRepo) ListByPostID(context.Context, int64) ([]*models.PostTarget, error) {
	return f.targets, nil
}

func (f *fakePostTargetRepo) Create(context.Context, *sql.Tx, *models.PostTarget) (int64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakePostTargetRepo) MarkPublishing(_ context.Context, id int64) error {
	f.rows[id].status = models.TargetStatusPublishing
	return nil
}

func (f *fakePostTargetRepo) MarkPublished(_ context.Context, id int64, remoteID string) error {
	row := f.rows[id]
	row.status = models.TargetStatusPublished
	row.remoteID = remoteID
	return nil
}

func (f *fakePostTargetRepo) MarkFailed(_ context.Context, id int64, errorCode, errorMessage string) error {
	row := f.rows[id]
	row.status = models.TargetStatusFailed
	row.errorCode = errorCode
	row.errorMessage = errorMessage
	row.remoteID = ""
	return nil
}

func (f *fakePostTargetRepo) SetCommentResult(_ context.Context, id int64, commentID, commentError string) error {
	row := f.rows[id]
	row.commentID = commentID
	row.commentError = commentError
	return nil
}

type fakeTargetRepo struct {
	targets map[int64]*models.Target
}

func (f *fakeTargetRepo) GetByID(_ context.Context, id int64) (*models.Target, error) {
	return f.targets[id], nil
}

func (f *fakeTargetRepo) ListExpiring(context.Context, time.Time, time.Time) ([]*models.Target, error) {
	return nil, nil
}

func (f *fakeTargetRepo) UpdateTokens(context.Context, int64, string, string, time.Time) error {
	return nil
}

type fakeTargetPublisher struct {
	publishErr  map[int64]error
	commentErr  map[int64]error
	publishLog  []int64
	commentLog  []int64
	lastContent platform.PostContent
}

func (f *fakeTargetPublisher) Publish(_ context.Context, target *models.Target, content platform.PostContent) (string, error) {
	f.publishLog = append(f.publishLog, target.ID)
	f.lastContent = content
	if err := f.publishErr[target.ID]; err != nil {
		return "", err
	}
	return fmt.Sprintf("remote-%d", target.ID), nil
}

func (f *fakeTargetPublisher) Comment(_ context.Context, target *models.Target, remoteID, _ string) (string, error) {
	f.commentLog = append(f.commentLog, target.ID)
	if err := f.commentErr[target.ID]; err != nil {
		return "", err
	}
	return "comment-" + remoteID, nil
}

type fakeMediaResolver struct {
	err error
}

func (f *fakeMediaResolver) ResolveURLs(_ context.Context, refs []string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	urls := make([]string, len(refs))
	for i, ref := range refs {
		urls[i] = "https://media.test/" + ref
	}
	return urls, nil
}

type publishFixture struct {
	pr    *fakePostRepo
	pt    *fakePostTargetRepo
	tr    *fakeTargetRepo
	tp    *fakeTargetPublisher
	b     *BatchPublisher
	slept []time.Duration
}

func newPublishFixture(post *models.Post, targetIDs ...int64) *publishFixture {
	f := &publishFixture{
		pr: &fakePostRepo{posts: map[int64]*models.Post{post.ID: post}},
		tr: &fakeTargetRepo{targets: make(map[int64]*models.Target)},
		tp: &fakeTargetPublisher{publishErr: make(map[int64]error), commentErr: make(map[int64]error)},
	}

	var postTargets []*models.PostTarget
	for i, tid := range targetIDs {
		postTargets = append(postTargets, &models.PostTarget{
			ID:       int64(100 + i),
			PostID:   post.ID,
			TargetID: tid,
			Status:   models.TargetStatusScheduled,
		})
		f.tr.targets[tid] = &models.Target{
			ID:          tid,
			AccountID:   fmt.Sprintf("acct-%d", tid),
			AccountName: fmt.Sprintf("Account %d", tid),
		}
	}
	f.pt = newFakePostTargetRepo(postTargets...)

	mr := &fakeMediaResolver{}
	f.b = NewBatchPublisher(f.pr, f.pt, f.tr, f.tp, mr, 2*time.Second)
	f.b.sleep = func(d time.Duration) { f.slept = append(f.slept, d) }
	return f
}

func scheduledPost(id int64, at time.Time) *models.Post {
	return &models.Post{
		ID:          id,
		UserID:      1,
		Content:     "hello world",
		Status:      models.PostStatusScheduled,
		ScheduledAt: &at,
		MediaRefs:   []string{"img-1.png"},
	}
}

func TestPublishScheduledAllSucceed(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	f := newPublishFixture(scheduledPost(7, past), 11, 12, 13)

	result, err := f.b.PublishScheduled(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusPublished, result.Status)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Successful)
	assert.Equal(t, 0, result.Failed)
	require.NotNil(t, result.PublishedAt)

	assert.Equal(t, models.PostStatusPublished, f.pr.resultStatus)
	require.NotNil(t, f.pr.resultTime)

	for _, tr := range result.Targets {
		assert.Equal(t, models.TargetStatusPublished, tr.Status)
		assert.NotEmpty(t, tr.RemoteID)
		row := f.pt.rows[tr.PostTargetID]
		assert.Equal(t, tr.RemoteID, row.remoteID)
	}
}

func TestPublishScheduledPartialSuccess(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	f := newPublishFixture(scheduledPost(7, past), 11, 12, 13)
	f.tp.publishErr[12] = &platform.Error{Code: platform.ErrCodeRejected, Message: "content rejected", StatusCode: 422}

	result, err := f.b.PublishScheduled(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusPartialSuccess, result.Status)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.NotNil(t, result.PublishedAt)

	failed := result.Targets[1]
	assert.Equal(t, models.TargetStatusFailed, failed.Status)
	assert.Equal(t, platform.ErrCodeRejected, failed.ErrorCode)
	assert.Equal(t, "content rejected", failed.ErrorMessage)
	assert.Empty(t, failed.RemoteID)

	row := f.pt.rows[failed.PostTargetID]
	assert.Equal(t, models.TargetStatusFailed, row.status)
	assert.Equal(t, platform.ErrCodeRejected, row.errorCode)
	assert.Empty(t, row.remoteID)
}

func TestPublishScheduledAllFail(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	f := newPublishFixture(scheduledPost(7, past), 11, 12)
	f.tp.publishErr[11] = errors.New("boom")
	f.tp.publishErr[12] = errors.New("boom")

	result, err := f.b.PublishScheduled(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusFailed, result.Status)
	assert.Equal(t, 0, result.Successful)
	assert.Nil(t, result.PublishedAt)
	assert.Equal(t, models.PostStatusFailed, f.pr.resultStatus)
	assert.Nil(t, f.pr.resultTime)
}

func TestPublishScheduledSkipsNonScheduledPost(t *testing.T) {
	post := &models.Post{ID: 7, Status: models.PostStatusPublished}
	f := newPublishFixture(post, 11)

	result, err := f.b.PublishScheduled(context.Background(), 7)
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, models.PostStatusPublished, result.Status)
	assert.Empty(t, f.tp.publishLog, "no external call for an already-published post")
	assert.Empty(t, f.pr.statusUpdates)
}

func TestPublishScheduledRejectsEarlyDelivery(t *testing.T) {
	future := time.Now().Add(time.Hour)
	f := newPublishFixture(scheduledPost(7, future), 11)

	_, err := f.b.PublishScheduled(context.Background(), 7)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDue)
	assert.True(t, IsTransient(err), "early delivery must be retried")
	assert.Empty(t, f.tp.publishLog)
}

func TestPublishScheduledPostNotFound(t *testing.T) {
	f := newPublishFixture(scheduledPost(7, time.Now().Add(-time.Minute)), 11)

	_, err := f.b.PublishScheduled(context.Background(), 99)
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.False(t, IsTransient(err), "missing post must not be retried")
}

func TestPublishImmediateFromDraft(t *testing.T) {
	post := &models.Post{ID: 7, Content: "hi", Status: models.PostStatusDraft}
	f := newPublishFixture(post, 11)

	result, err := f.b.PublishImmediate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, result.Status)
}

func TestPublishImmediateIgnoresDueTime(t *testing.T) {
	future := time.Now().Add(time.Hour)
	f := newPublishFixture(scheduledPost(7, future), 11)

	result, err := f.b.PublishImmediate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, result.Status)
}

func TestPublishImmediateRejectsPublishedPost(t *testing.T) {
	post := &models.Post{ID: 7, Status: models.PostStatusPublished}
	f := newPublishFixture(post, 11)

	_, err := f.b.PublishImmediate(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotPublishable)
	assert.False(t, IsTransient(err))
}

func TestMediaFailureRestoresStatus(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	post := scheduledPost(7, past)
	f := newPublishFixture(post, 11)
	f.b.mr = &fakeMediaResolver{err: errors.New("r2 unavailable")}

	_, err := f.b.PublishScheduled(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	// publishing was set, then rolled back to the pre-run status
	require.Len(t, f.pr.statusUpdates, 2)
	assert.Equal(t, models.PostStatusPublishing, f.pr.statusUpdates[0])
	assert.Equal(t, models.PostStatusScheduled, f.pr.statusUpdates[1])
	assert.Empty(t, f.tp.publishLog)
}

func TestInterCallDelayBetweenTargets(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	f := newPublishFixture(scheduledPost(7, past), 11, 12, 13)

	_, err := f.b.PublishScheduled(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, []int64{11, 12, 13}, f.tp.publishLog, "targets published in order")
	require.Len(t, f.slept, 2, "delay between calls, not before the first")
	for _, d := range f.slept {
		assert.Equal(t, 2*time.Second, d)
	}
}

func TestFirstCommentOnSuccessfulTargets(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	post := scheduledPost(7, past)
	post.FirstComment = "check the link in bio"
	f := newPublishFixture(post, 11, 12)
	f.tp.publishErr[12] = errors.New("boom")

	result, err := f.b.PublishScheduled(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, []int64{11}, f.tp.commentLog, "comment only under published targets")
	assert.Equal(t, "comment-remote-11", result.Targets[0].CommentID)
	assert.Empty(t, result.Targets[1].CommentID)

	row := f.pt.rows[result.Targets[0].PostTargetID]
	assert.Equal(t, "comment-remote-11", row.commentID)
}

func TestCommentFailureDoesNotChangePublishStatus(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	post := scheduledPost(7, past)
	post.FirstComment = "first!"
	f := newPublishFixture(post, 11)
	f.tp.commentErr[11] = errors.New("comments disabled")

	result, err := f.b.PublishScheduled(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusPublished, result.Status)
	tr := result.Targets[0]
	assert.Equal(t, models.TargetStatusPublished, tr.Status)
	assert.NotEmpty(t, tr.RemoteID)
	assert.Equal(t, "comments disabled", tr.CommentError)

	row := f.pt.rows[tr.PostTargetID]
	assert.Equal(t, models.TargetStatusPublished, row.status)
	assert.Equal(t, "comments disabled", row.commentError)
}

func TestNoCommentWhenAllTargetsFail(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	post := scheduledPost(7, past)
	post.FirstComment = "first!"
	f := newPublishFixture(post, 11)
	f.tp.publishErr[11] = errors.New("boom")

	_, err := f.b.PublishScheduled(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, f.tp.commentLog)
}

func TestMediaURLsPassedToPlatform(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	f := newPublishFixture(scheduledPost(7, past), 11)

	_, err := f.b.PublishScheduled(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://media.test/img-1.png"}, f.tp.lastContent.MediaURLs)
}

func TestAggregateStatus(t *testing.T) {
	assert.Equal(t, models.PostStatusFailed, aggregateStatus(0, 3))
	assert.Equal(t, models.PostStatusPublished, aggregateStatus(3, 3))
	assert.Equal(t, models.PostStatusPartialSuccess, aggregateStatus(1, 3))
}
