package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecast/pagecast/internal/models"
	"github.com/pagecast/pagecast/internal/publisher"
)

type fakePublisher struct {
	result *publisher.BatchResult
	err    error
	calls  []int64
}

func (f *fakePublisher) PublishScheduled(_ context.Context, postID int64) (*publisher.BatchResult, error) {
	f.calls = append(f.calls, postID)
	return f.result, f.err
}

type fakeSweeper struct {
	requeued int
	err      error
	userIDs  []int64
}

func (f *fakeSweeper) Sweep(_ context.Context, userID int64) (int, error) {
	f.userIDs = append(f.userIDs, userID)
	return f.requeued, f.err
}

func publishTask(t *testing.T, postID int64) *asynq.Task {
	t.Helper()
	job := NewPublishJob(postID, 0, 3)
	payload, err := json.Marshal(job.Publish)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypePublishPost, payload)
}

func TestHandlePublishTaskAcksTerminalResult(t *testing.T) {
	pub := &fakePublisher{result: &publisher.BatchResult{Status: models.PostStatusFailed, Total: 2, Failed: 2}}
	w := NewWorker(pub, &fakeSweeper{})

	err := w.HandlePublishTask(context.Background(), publishTask(t, 7))
	assert.NoError(t, err, "all-targets-failed is terminal, not a queue retry")
	assert.Equal(t, []int64{7}, pub.calls)
}

func TestHandlePublishTaskRetriesTransientError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("db unavailable")}
	w := NewWorker(pub, &fakeSweeper{})

	err := w.HandlePublishTask(context.Background(), publishTask(t, 7))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePublishTaskSkipsRetryForNotPublishable(t *testing.T) {
	pub := &fakePublisher{err: publisher.ErrNotPublishable}
	w := NewWorker(pub, &fakeSweeper{})

	err := w.HandlePublishTask(context.Background(), publishTask(t, 7))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePublishTaskAcksMissingPost(t *testing.T) {
	pub := &fakePublisher{err: publisher.ErrPostNotFound}
	w := NewWorker(pub, &fakeSweeper{})

	err := w.HandlePublishTask(context.Background(), publishTask(t, 7))
	assert.NoError(t, err, "a deleted post consumes its job")
}

func TestHandlePublishTaskAcksSkippedRun(t *testing.T) {
	pub := &fakePublisher{result: &publisher.BatchResult{Status: models.PostStatusPublished, Skipped: true}}
	w := NewWorker(pub, &fakeSweeper{})

	err := w.HandlePublishTask(context.Background(), publishTask(t, 7))
	assert.NoError(t, err)
}

func TestHandlePublishTaskBadPayload(t *testing.T) {
	w := NewWorker(&fakePublisher{}, &fakeSweeper{})

	err := w.HandlePublishTask(context.Background(), asynq.NewTask(TaskTypePublishPost, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleSweepTask(t *testing.T) {
	sw := &fakeSweeper{requeued: 2}
	w := NewWorker(&fakePublisher{}, sw)

	payload, err := json.Marshal(SweepPayload{UserID: 9, Manual: true})
	require.NoError(t, err)

	err = w.HandleSweepTask(context.Background(), asynq.NewTask(TaskTypeSweepPosts, payload))
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, sw.userIDs)
}

func TestHandleJobDispatchesByKind(t *testing.T) {
	pub := &fakePublisher{result: &publisher.BatchResult{Status: models.PostStatusPublished}}
	sw := &fakeSweeper{}
	w := NewWorker(pub, sw)

	require.NoError(t, w.HandleJob(context.Background(), NewPublishJob(3, 0, 3)))
	assert.Equal(t, []int64{3}, pub.calls)

	require.NoError(t, w.HandleJob(context.Background(), NewManualSweepJob(0)))
	assert.Equal(t, []int64{0}, sw.userIDs)

	err := w.HandleJob(context.Background(), Job{Kind: "bogus"})
	assert.Error(t, err)
}

func TestHandleJobAcksPermanentFailure(t *testing.T) {
	pub := &fakePublisher{err: publisher.ErrNotPublishable}
	w := NewWorker(pub, &fakeSweeper{})

	err := w.HandleJob(context.Background(), NewPublishJob(3, 0, 3))
	assert.NoError(t, err, "permanent failures must not churn the in-memory retry loop")
}

func TestHandleJobPropagatesTransientFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("db unavailable")}
	w := NewWorker(pub, &fakeSweeper{})

	err := w.HandleJob(context.Background(), NewPublishJob(3, 0, 3))
	assert.Error(t, err)
}
