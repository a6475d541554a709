package shard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/convoflow/cluster"
	"github.com/mohitkumar/convoflow/dispatch"
	"github.com/mohitkumar/convoflow/engine"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"go.uber.org/zap"
)

var ErrPartitionNotOwned = errors.New("partition is not owned by this node")
var ErrUnknownJob = errors.New("unknown job type")

type Dispatcher interface {
	Dispatch(ctx context.Context, msg *model.Message) (*dispatch.Result, error)
}

type Engine interface {
	Deliver(ctx context.Context, orgId int64, contactId int64, contextId string, signal model.Signal) (*engine.TurnResult, error)
	StartByUuid(ctx context.Context, contact *model.Contact, flowUuid string, status model.FlowStatus) (*engine.TurnResult, error)
}

const DEFAULT_CONFLICT_RETRIES = 3
const CONFLICT_RETRY_INTERVAL = 20 * time.Millisecond

type Config struct {
	ShardCapacity   int
	ConflictRetries int
}

// Manager routes every unit of work for a contact to the shard owning the
// contact's partition.
type Manager struct {
	ring       *cluster.Ring
	shards     map[int]*Shard
	dispatcher Dispatcher
	engine     Engine
	contacts   persistence.ContactStore
	executors  map[string]Executor
	retries    int
	wg         *sync.WaitGroup
}

func NewManager(ring *cluster.Ring, dispatcher Dispatcher, eng Engine, contacts persistence.ContactStore, conf Config, wg *sync.WaitGroup) *Manager {
	m := &Manager{
		ring:       ring,
		shards:     make(map[int]*Shard),
		dispatcher: dispatcher,
		engine:     eng,
		contacts:   contacts,
		executors:  make(map[string]Executor),
		retries:    conf.ConflictRetries,
		wg:         wg,
	}
	if m.retries <= 0 {
		m.retries = DEFAULT_CONFLICT_RETRIES
	}
	for _, p := range ring.GetPartitions() {
		m.shards[p] = NewShard(p, conf.ShardCapacity, wg)
	}
	return m
}

func (m *Manager) RegisterExecutor(name string, executor Executor) {
	m.executors[name] = executor
}

func (m *Manager) Start() {
	for _, s := range m.shards {
		s.Start()
	}
	for _, ex := range m.executors {
		ex.Start()
	}
	logger.Info("shards started", zap.Int("shards", len(m.shards)), zap.Int("executors", len(m.executors)))
}

func (m *Manager) Stop() {
	for _, ex := range m.executors {
		ex.Stop()
	}
	for _, s := range m.shards {
		s.Stop()
	}
}

func (m *Manager) shardFor(orgId int64, contactId int64) (*Shard, error) {
	p := m.ring.GetPartition(orgId, contactId)
	s, ok := m.shards[p]
	if !ok {
		return nil, fmt.Errorf("partition %d: %w", p, ErrPartitionNotOwned)
	}
	return s, nil
}

// Dispatch runs msg on its contact's shard and waits for the decision.
func (m *Manager) Dispatch(ctx context.Context, msg *model.Message) (*dispatch.Result, error) {
	s, err := m.shardFor(msg.OrganizationId, msg.ContactId)
	if err != nil {
		return nil, err
	}
	type reply struct {
		res *dispatch.Result
		err error
	}
	done := make(chan reply, 1)
	turnCtx := context.WithoutCancel(ctx)
	err = s.submit(ctx, func() {
		var res *dispatch.Result
		err := m.retryConflicts(turnCtx, func() error {
			var err error
			res, err = m.dispatcher.Dispatch(turnCtx, msg)
			return err
		})
		done <- reply{res: res, err: err}
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DeliverSignal queues signal for the context on its contact's shard.
func (m *Manager) DeliverSignal(ctx context.Context, orgId int64, contactId int64, contextId string, signal model.Signal) error {
	s, err := m.shardFor(orgId, contactId)
	if err != nil {
		return err
	}
	turnCtx := context.WithoutCancel(ctx)
	return s.submit(ctx, func() {
		err := m.retryConflicts(turnCtx, func() error {
			_, err := m.engine.Deliver(turnCtx, orgId, contactId, contextId, signal)
			return err
		})
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrStaleToken):
			logger.Debug("stale signal ignored", zap.String("context", contextId), zap.String("kind", string(signal.Kind)))
		default:
			logger.Error("signal delivery failed", zap.String("context", contextId), zap.String("kind", string(signal.Kind)), zap.Error(err))
		}
	})
}

// RunJob queues a due delay-queue job on its contact's shard.
func (m *Manager) RunJob(ctx context.Context, job *model.Job) error {
	switch job.Type {
	case model.JOB_RESUME:
		return m.DeliverSignal(ctx, job.OrganizationId, job.ContactId, job.ContextId, job.Signal)
	case model.JOB_START_FLOW:
		s, err := m.shardFor(job.OrganizationId, job.ContactId)
		if err != nil {
			return err
		}
		turnCtx := context.WithoutCancel(ctx)
		return s.submit(ctx, func() {
			err := m.retryConflicts(turnCtx, func() error {
				return m.startFlow(turnCtx, job)
			})
			if err != nil {
				logger.Error("scheduled flow start failed", zap.Int64("contact", job.ContactId), zap.String("flow", job.FlowUuid), zap.Error(err))
			}
		})
	}
	return fmt.Errorf("job %s, type %q: %w", job.Id, job.Type, ErrUnknownJob)
}

func (m *Manager) startFlow(ctx context.Context, job *model.Job) error {
	contact, err := m.contacts.GetContact(ctx, job.OrganizationId, job.ContactId)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		contact = &model.Contact{Id: job.ContactId, OrganizationId: job.OrganizationId}
	}
	status := job.FlowStatus
	if len(status) == 0 {
		status = model.PUBLISHED
	}
	_, err = m.engine.StartByUuid(ctx, contact, job.FlowUuid, status)
	return err
}

// retryConflicts reruns turn on fresh state while it fails with a context
// version conflict, which only a writer in another process can cause.
func (m *Manager) retryConflicts(ctx context.Context, turn func() error) error {
	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(CONFLICT_RETRY_INTERVAL), uint64(m.retries)), ctx)
	return backoff.Retry(func() error {
		attempt++
		err := turn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, persistence.ErrVersionConflict) {
			return backoff.Permanent(err)
		}
		logger.Warn("turn lost a version check, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, b)
}
