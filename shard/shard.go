package shard

import (
	"context"
	"strconv"
	"sync"

	"github.com/mohitkumar/convoflow/util"
)

const DEFAULT_SHARD_CAPACITY = 256

type Executor interface {
	Start()
	Stop()
}

type task func()

// Shard owns one partition of contacts. Everything for a contact runs on its
// shard's single worker, so a contact never has two turns in flight.
type Shard struct {
	id     int
	worker *util.Worker[task]
}

func NewShard(id int, capacity int, wg *sync.WaitGroup) *Shard {
	if capacity <= 0 {
		capacity = DEFAULT_SHARD_CAPACITY
	}
	s := &Shard{id: id}
	s.worker = util.NewWorker("shard-"+strconv.Itoa(id), wg, s.handle, capacity)
	return s
}

func (s *Shard) GetShardId() int {
	return s.id
}

func (s *Shard) handle(t task) error {
	t()
	return nil
}

func (s *Shard) submit(ctx context.Context, t task) error {
	return s.worker.Submit(ctx, t)
}

func (s *Shard) Start() {
	s.worker.Start()
}

func (s *Shard) Stop() {
	s.worker.Stop()
}
