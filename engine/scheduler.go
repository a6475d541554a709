package engine

import (
	"context"

	"github.com/mohitkumar/convoflow/action"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
)

var _ action.Scheduler = new(QueueScheduler)

// QueueScheduler puts resumption and delayed start jobs on the delay queue.
type QueueScheduler struct {
	queue persistence.DelayQueue
}

func NewQueueScheduler(queue persistence.DelayQueue) *QueueScheduler {
	return &QueueScheduler{queue: queue}
}

func (s *QueueScheduler) Schedule(ctx context.Context, job model.Job) error {
	return s.queue.PushJob(ctx, job)
}
