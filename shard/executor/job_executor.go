package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/shard"
	"github.com/mohitkumar/convoflow/util"
	"go.uber.org/zap"
)

const DEFAULT_POLL_BATCH = 100

var _ shard.Executor = new(jobExecutor)

type JobRunner interface {
	RunJob(ctx context.Context, job *model.Job) error
}

// jobExecutor moves due jobs from the delay queue onto the shards: timer
// firings, webhook timeouts and delayed flow starts.
type jobExecutor struct {
	queue  persistence.DelayQueue
	runner JobRunner
	batch  int
	wg     *sync.WaitGroup
	tw     *util.TickWorker
	stop   chan struct{}
}

func NewJobExecutor(queue persistence.DelayQueue, runner JobRunner, interval time.Duration, batch int, wg *sync.WaitGroup) *jobExecutor {
	if batch <= 0 {
		batch = DEFAULT_POLL_BATCH
	}
	if interval <= 0 {
		interval = time.Second
	}
	ex := &jobExecutor{
		queue:  queue,
		runner: runner,
		batch:  batch,
		stop:   make(chan struct{}),
		wg:     wg,
	}
	ex.tw = util.NewTickWorker("job-executor", interval, ex.stop, ex.handle, ex.wg)
	return ex
}

func (ex *jobExecutor) Start() {
	if ex.IsRunning() {
		return
	}
	ex.tw.Start()
}

func (ex *jobExecutor) IsRunning() bool {
	return ex.tw.IsRunning()
}

func (ex *jobExecutor) Stop() {
	if !ex.IsRunning() {
		return
	}
	ex.tw.Stop()
}

func (ex *jobExecutor) handle(now time.Time) {
	ex.Poll(context.Background(), now)
}

// Poll submits every job due at now and returns how many were submitted.
func (ex *jobExecutor) Poll(ctx context.Context, now time.Time) int {
	jobs, err := ex.queue.PollDue(ctx, now, ex.batch)
	if err != nil {
		logger.Error("error while polling due jobs", zap.Error(err))
		return 0
	}
	submitted := 0
	for _, job := range jobs {
		if err := ex.runner.RunJob(ctx, job); err != nil {
			if errors.Is(err, shard.ErrUnknownJob) {
				logger.Error("dropping due job", zap.String("job", job.Id), zap.String("type", string(job.Type)), zap.Error(err))
				continue
			}
			ex.requeue(ctx, job, err)
			continue
		}
		submitted++
	}
	return submitted
}

// requeue puts back a claimed job the shards could not take, so it is
// polled again on a later tick or by the node owning its partition.
func (ex *jobExecutor) requeue(ctx context.Context, job *model.Job, cause error) {
	logger.Warn("due job not submitted, requeueing", zap.String("job", job.Id), zap.String("type", string(job.Type)), zap.Error(cause))
	if err := ex.queue.PushJob(context.WithoutCancel(ctx), *job); err != nil {
		logger.Error("error requeueing due job", zap.String("job", job.Id), zap.Error(err))
	}
}
