package executor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence/memory"
	"github.com/mohitkumar/convoflow/shard"
	"github.com/mohitkumar/convoflow/util"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu     sync.Mutex
	jobs   []string
	reject error
}

func (r *recordingRunner) RunJob(ctx context.Context, job *model.Job) error {
	if job.Type != model.JOB_RESUME && job.Type != model.JOB_START_FLOW {
		return fmt.Errorf("job %s: %w", job.Id, shard.ErrUnknownJob)
	}
	r.mu.Lock()
	reject := r.reject
	r.mu.Unlock()
	if reject != nil {
		return reject
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job.Id)
	return nil
}

func (r *recordingRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.jobs...)
}

func TestPollSubmitsDueJobs(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, store.PushJob(ctx, model.Job{Id: "late", Type: model.JOB_RESUME, DueAt: now.Add(time.Minute)}))
	require.NoError(t, store.PushJob(ctx, model.Job{Id: "first", Type: model.JOB_RESUME, DueAt: now.Add(-time.Minute)}))
	require.NoError(t, store.PushJob(ctx, model.Job{Id: "second", Type: model.JOB_START_FLOW, DueAt: now}))
	require.NoError(t, store.PushJob(ctx, model.Job{Id: "bad", Type: "cleanup", DueAt: now}))

	runner := &recordingRunner{}
	ex := NewJobExecutor(store, runner, time.Second, 10, &sync.WaitGroup{})
	require.Equal(t, 2, ex.Poll(ctx, now))
	require.Equal(t, []string{"first", "second"}, runner.ran())
	require.Len(t, store.PendingJobs(), 1)

	require.Zero(t, ex.Poll(ctx, now))
	require.Equal(t, 1, ex.Poll(ctx, now.Add(time.Hour)))
	require.Empty(t, store.PendingJobs())
}

func TestPollRequeuesRejectedJobs(t *testing.T) {
	tests := map[string]error{
		"worker stopped":      util.ErrWorkerStopped,
		"partition not owned": fmt.Errorf("partition 3: %w", shard.ErrPartitionNotOwned),
		"cancelled":           context.Canceled,
	}
	for name, reject := range tests {
		t.Run(name, func(t *testing.T) {
			store := memory.NewStore()
			now := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
			ctx := context.Background()
			timeout := model.Job{Id: "webhook-timeout", Type: model.JOB_RESUME, ContextId: "c1", DueAt: now}
			require.NoError(t, store.PushJob(ctx, timeout))

			runner := &recordingRunner{reject: reject}
			ex := NewJobExecutor(store, runner, time.Second, 10, &sync.WaitGroup{})
			require.Zero(t, ex.Poll(ctx, now))
			pending := store.PendingJobs()
			require.Len(t, pending, 1)
			require.Equal(t, "webhook-timeout", pending[0].Id)
			require.Equal(t, "c1", pending[0].ContextId)

			runner.mu.Lock()
			runner.reject = nil
			runner.mu.Unlock()
			require.Equal(t, 1, ex.Poll(ctx, now))
			require.Equal(t, []string{"webhook-timeout"}, runner.ran())
			require.Empty(t, store.PendingJobs())
		})
	}
}

func TestJobExecutorTicks(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.PushJob(context.Background(), model.Job{Id: "due", Type: model.JOB_RESUME, DueAt: time.Now().Add(-time.Second)}))
	runner := &recordingRunner{}
	wg := &sync.WaitGroup{}
	ex := NewJobExecutor(store, runner, 10*time.Millisecond, 0, wg)
	ex.Start()
	require.True(t, ex.IsRunning())
	require.Eventually(t, func() bool { return len(runner.ran()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ex.Stop()
	wg.Wait()
	require.False(t, ex.IsRunning())
}
