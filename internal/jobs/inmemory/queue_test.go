package inmemory

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/finance-capture/internal/jobs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(workers int, store jobs.JobStore) *Queue {
	return NewQueue(10, workers, store, zerolog.New(io.Discard))
}

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.MessageJob {
	t.Helper()
	var got *jobs.MessageJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 2*time.Second, 10*time.Millisecond)
	return got
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore(0)
	q := newTestQueue(2, store)
	ctx := context.Background()

	var handled atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		mj, ok := job.(*jobs.MessageJob)
		require.True(t, ok)
		assert.Equal(t, "chai 20", mj.Text)
		handled.Add(1)
		return nil
	}))
	defer q.Stop(ctx)

	job := &jobs.MessageJob{ChatID: 1, TelegramUserID: 42, Text: "chai 20"}
	require.NoError(t, q.PublishMessage(ctx, job))
	assert.NotEmpty(t, job.JobID)

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, int32(1), handled.Load())
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
}

func TestQueue_FailedJobIsNotRetried(t *testing.T) {
	store := NewStore(0)
	q := newTestQueue(1, store)
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Job) error {
		calls.Add(1)
		return errors.New("telegram: 502")
	}))
	defer q.Stop(ctx)

	job := &jobs.MessageJob{TelegramUserID: 42, Text: "hi"}
	require.NoError(t, q.PublishMessage(ctx, job))

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "telegram: 502", got.Error)
	assert.NotNil(t, got.CompletedAt)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueue_RecoversFromPanic(t *testing.T) {
	store := NewStore(0)
	q := newTestQueue(1, store)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx, func(_ context.Context, job jobs.Job) error {
		if job.(*jobs.MessageJob).Text == "boom" {
			panic("nil pointer")
		}
		return nil
	}))
	defer q.Stop(ctx)

	bad := &jobs.MessageJob{Text: "boom"}
	good := &jobs.MessageJob{Text: "fine"}
	require.NoError(t, q.PublishMessage(ctx, bad))
	require.NoError(t, q.PublishMessage(ctx, good))

	failed := waitForStatus(t, store, bad.JobID, jobs.JobStatusFailed)
	assert.Contains(t, failed.Error, "panic")
	waitForStatus(t, store, good.JobID, jobs.JobStatusCompleted)
}

func TestQueue_ConcurrentWorkers(t *testing.T) {
	q := newTestQueue(3, nil)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	wg.Add(3)
	require.NoError(t, q.Start(ctx, func(context.Context, jobs.Job) error {
		defer wg.Done()
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, q.PublishMessage(ctx, &jobs.MessageJob{Text: "x"}))
	}
	wg.Wait()
	require.NoError(t, q.Stop(ctx))

	assert.Equal(t, 3, maxSeen)
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := newTestQueue(1, nil)
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishMessage(context.Background(), &jobs.MessageJob{Text: "x"})
	assert.ErrorContains(t, err, "queue is closed")
	assert.Error(t, q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }))
}

func TestStore_ListAndEvict(t *testing.T) {
	ctx := context.Background()
	store := NewStore(2)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveJob(ctx, &jobs.MessageJob{JobID: "a", TelegramUserID: 1, Status: jobs.JobStatusCompleted, CreatedAt: base}))
	require.NoError(t, store.SaveJob(ctx, &jobs.MessageJob{JobID: "b", TelegramUserID: 2, Status: jobs.JobStatusPending, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, store.SaveJob(ctx, &jobs.MessageJob{JobID: "c", TelegramUserID: 1, Status: jobs.JobStatusFailed, CreatedAt: base.Add(2 * time.Minute)}))

	_, err := store.GetJob(ctx, "a")
	assert.Error(t, err, "oldest finished job should be evicted")

	all, err := store.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].JobID)
	assert.Equal(t, "c", all[1].JobID)

	byUser, err := store.ListJobs(ctx, jobs.JobFilter{TelegramUserID: 1})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "c", byUser[0].JobID)

	pending, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusPending, Limit: 1})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].JobID)

	assert.Error(t, store.SaveJob(ctx, &jobs.MessageJob{}))
}
