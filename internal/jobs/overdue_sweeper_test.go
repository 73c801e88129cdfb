package job

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecast/pagecast/internal/models"
	"github.com/pagecast/pagecast/internal/queue"
)

type fakePostRepo struct {
	overdue []*models.Post
	listErr error
	lastNow time.Time
}

func (f *fakePostRepo) GetByID(context.Context, int64) (*models.Post, error) { return nil, nil }

func (f *fakePostRepo) Create(context.Context, *sql.Tx, *models.Post) (int64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakePostRepo) CheckByUserID(context.Context, int64, int64) (bool, error) {
	return false, nil
}

func (f *fakePostRepo) UpdateStatus(context.Context, int64, string) error { return nil }

func (f *fakePostRepo) SetScheduledState(context.Context, int64, time.Time) error { return nil }

func (f *fakePostRepo) ResetToDraft(context.Context, int64) error { return nil }

func (f *fakePostRepo) SetPublishResult(context.Context, int64, string, *time.Time) error {
	return nil
}

func (f *fakePostRepo) ListOverdue(_ context.Context, _ int64, now time.Time) ([]*models.Post, error) {
	f.lastNow = now
	return f.overdue, f.listErr
}

func (f *fakePostRepo) Remove(context.Context, int64) error { return nil }

func overduePost(id int64) *models.Post {
	at := time.Now().Add(-time.Hour)
	return &models.Post{ID: id, Status: models.PostStatusScheduled, ScheduledAt: &at}
}

func TestSweepRequeuesOverduePosts(t *testing.T) {
	pr := &fakePostRepo{overdue: []*models.Post{overduePost(1), overduePost(2)}}
	q := queue.NewMemoryQueue(time.Second, 5)
	defer q.Stop()

	s := NewSweeper(pr, q, 3)
	requeued, err := s.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, requeued)

	for _, id := range []int64{1, 2} {
		pending, err := q.Pending(context.Background(), queue.PublishJobID(id))
		require.NoError(t, err)
		assert.True(t, pending, "overdue post %d must get a job", id)
	}
}

func TestSweepSkipsPostsWithPendingJobs(t *testing.T) {
	pr := &fakePostRepo{overdue: []*models.Post{overduePost(1), overduePost(2)}}
	q := queue.NewMemoryQueue(time.Second, 5)
	defer q.Stop()

	// post 1 already has its job; only post 2 needs recovery
	require.NoError(t, q.Enqueue(context.Background(), queue.NewPublishJob(1, time.Hour, 3)))

	s := NewSweeper(pr, q, 3)
	requeued, err := s.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
}

func TestSweepIsIdempotent(t *testing.T) {
	pr := &fakePostRepo{overdue: []*models.Post{overduePost(1)}}
	q := queue.NewMemoryQueue(time.Second, 5)
	defer q.Stop()

	s := NewSweeper(pr, q, 3)

	requeued, err := s.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	requeued, err = s.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, requeued, "second pass finds every job already present")
}

func TestSweepNothingOverdue(t *testing.T) {
	pr := &fakePostRepo{}
	q := queue.NewMemoryQueue(time.Second, 5)
	defer q.Stop()

	s := NewSweeper(pr, q, 3)
	requeued, err := s.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, requeued)
}

func TestSweepPropagatesListError(t *testing.T) {
	pr := &fakePostRepo{listErr: errors.New("db down")}
	q := queue.NewMemoryQueue(time.Second, 5)
	defer q.Stop()

	s := NewSweeper(pr, q, 3)
	_, err := s.Sweep(context.Background(), 0)
	assert.Error(t, err)
}

func TestSweepUsesInjectedClock(t *testing.T) {
	pr := &fakePostRepo{}
	q := queue.NewMemoryQueue(time.Second, 5)
	defer q.Stop()

	s := NewSweeper(pr, q, 3)
	fixed := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	_, err := s.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, fixed, pr.lastNow)
}
