package shard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohitkumar/convoflow/cluster"
	"github.com/mohitkumar/convoflow/dispatch"
	"github.com/mohitkumar/convoflow/engine"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/persistence/memory"
	"github.com/stretchr/testify/require"
)

type serialDispatcher struct {
	inflight sync.Map
	overlap  int32
	handled  int32
}

func (d *serialDispatcher) Dispatch(ctx context.Context, msg *model.Message) (*dispatch.Result, error) {
	v, _ := d.inflight.LoadOrStore(msg.ContactId, new(int32))
	n := v.(*int32)
	if atomic.AddInt32(n, 1) > 1 {
		atomic.AddInt32(&d.overlap, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt32(n, -1)
	atomic.AddInt32(&d.handled, 1)
	if msg.Body == "boom" {
		return nil, errors.New("boom")
	}
	return &dispatch.Result{Decision: dispatch.DECISION_RESUME, FlowUuid: msg.Body}, nil
}

type call struct {
	contextId string
	flowUuid  string
	contact   *model.Contact
	signal    model.Signal
}

type chanEngine struct {
	calls chan call
	err   error
}

func (e *chanEngine) Deliver(ctx context.Context, orgId int64, contactId int64, contextId string, signal model.Signal) (*engine.TurnResult, error) {
	e.calls <- call{contextId: contextId, signal: signal}
	return nil, e.err
}

func (e *chanEngine) StartByUuid(ctx context.Context, contact *model.Contact, flowUuid string, status model.FlowStatus) (*engine.TurnResult, error) {
	e.calls <- call{flowUuid: flowUuid, contact: contact}
	return nil, e.err
}

func newManager(t *testing.T, disp Dispatcher, eng Engine, store *memory.Store) *Manager {
	ring := cluster.NewRing(cluster.RingConfig{PartitionCount: 4})
	ring.Join("local", true)
	wg := &sync.WaitGroup{}
	m := NewManager(ring, disp, eng, store, Config{ShardCapacity: 8}, wg)
	m.Start()
	t.Cleanup(func() {
		m.Stop()
		wg.Wait()
	})
	return m
}

func next(t *testing.T, eng *chanEngine) call {
	select {
	case c := <-eng.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("engine was not called")
	}
	return call{}
}

func TestDispatchSerializesPerContact(t *testing.T) {
	disp := &serialDispatcher{}
	m := newManager(t, disp, &chanEngine{calls: make(chan call, 1)}, memory.NewStore())

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := m.Dispatch(context.Background(), &model.Message{OrganizationId: 1, ContactId: int64(i % 3), Body: "f"})
			if err == nil && res.FlowUuid != "f" {
				err = errors.New("unexpected result")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(40), atomic.LoadInt32(&disp.handled))
	require.Zero(t, atomic.LoadInt32(&disp.overlap))

	_, err := m.Dispatch(context.Background(), &model.Message{OrganizationId: 1, ContactId: 1, Body: "boom"})
	require.EqualError(t, err, "boom")
}

func TestDeliverSignalAndJobs(t *testing.T) {
	eng := &chanEngine{calls: make(chan call, 4)}
	store := memory.NewStore()
	require.NoError(t, store.SaveContact(context.Background(), &model.Contact{Id: 7, OrganizationId: 1, Name: "asha"}))
	m := newManager(t, &serialDispatcher{}, eng, store)
	ctx := context.Background()

	require.NoError(t, m.DeliverSignal(ctx, 1, 7, "ctx-1", model.WebhookSignal("tok", model.WEBHOOK_SUCCESS, 200, nil)))
	c := next(t, eng)
	require.Equal(t, "ctx-1", c.contextId)
	require.Equal(t, "tok", c.signal.Token)

	timer := model.Signal{Kind: model.SIGNAL_TIMER, Token: "t-1", Payload: model.TIMER_ELAPSED}
	require.NoError(t, m.RunJob(ctx, &model.Job{Id: "t-1", Type: model.JOB_RESUME, OrganizationId: 1, ContactId: 7, ContextId: "ctx-2", Signal: timer}))
	c = next(t, eng)
	require.Equal(t, "ctx-2", c.contextId)
	require.Equal(t, timer, c.signal)

	require.NoError(t, m.RunJob(ctx, &model.Job{Id: "s-1", Type: model.JOB_START_FLOW, OrganizationId: 1, ContactId: 7, FlowUuid: "welcome"}))
	c = next(t, eng)
	require.Equal(t, "welcome", c.flowUuid)
	require.Equal(t, "asha", c.contact.Name)

	require.NoError(t, m.RunJob(ctx, &model.Job{Id: "s-2", Type: model.JOB_START_FLOW, OrganizationId: 1, ContactId: 8, FlowUuid: "welcome"}))
	c = next(t, eng)
	require.Equal(t, int64(8), c.contact.Id)

	require.ErrorIs(t, m.RunJob(ctx, &model.Job{Id: "x", Type: "cleanup", OrganizationId: 1, ContactId: 7}), ErrUnknownJob)
}

func TestPartitionNotOwned(t *testing.T) {
	ring := cluster.NewRing(cluster.RingConfig{PartitionCount: 16})
	ring.Join("local", true)
	ring.Join("remote", false)
	m := NewManager(ring, &serialDispatcher{}, &chanEngine{}, memory.NewStore(), Config{}, &sync.WaitGroup{})

	var foreign int64 = -1
	for contact := int64(1); contact < 1000 && foreign < 0; contact++ {
		if !ring.IsLocal(ring.GetPartition(1, contact)) {
			foreign = contact
		}
	}
	require.GreaterOrEqual(t, foreign, int64(1))
	_, err := m.Dispatch(context.Background(), &model.Message{OrganizationId: 1, ContactId: foreign})
	require.ErrorIs(t, err, ErrPartitionNotOwned)
	require.ErrorIs(t, m.DeliverSignal(context.Background(), 1, foreign, "c", model.NoSignal()), ErrPartitionNotOwned)
}

// conflictingDispatcher loses the version check a fixed number of times.
type conflictingDispatcher struct {
	conflicts int32
	calls     int32
}

func (d *conflictingDispatcher) Dispatch(ctx context.Context, msg *model.Message) (*dispatch.Result, error) {
	if atomic.AddInt32(&d.calls, 1) <= d.conflicts {
		return nil, fmt.Errorf("creating flow context %w", persistence.ErrVersionConflict)
	}
	return &dispatch.Result{Decision: dispatch.DECISION_KEYWORD, FlowUuid: msg.Body}, nil
}

func TestTurnRetriesVersionConflicts(t *testing.T) {
	tests := map[string]struct {
		conflicts int32
		calls     int32
		err       error
	}{
		"no conflict":        {conflicts: 0, calls: 1},
		"conflict then wins": {conflicts: 2, calls: 3},
		"keeps losing":       {conflicts: 10, calls: 4, err: persistence.ErrVersionConflict},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			disp := &conflictingDispatcher{conflicts: tc.conflicts}
			m := newManager(t, disp, &chanEngine{calls: make(chan call, 1)}, memory.NewStore())
			res, err := m.Dispatch(context.Background(), &model.Message{OrganizationId: 1, ContactId: 7, Body: "hello"})
			require.Equal(t, tc.calls, atomic.LoadInt32(&disp.calls))
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "hello", res.FlowUuid)
		})
	}
}

func TestConcurrentStartsLeaveOneLiveContext(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	other := &model.FlowContext{Id: "other-process", OrganizationId: 1, ContactId: 7, State: model.WAITING_MESSAGE}
	require.NoError(t, store.SaveContext(ctx, other))

	eng := &racingEngine{store: store}
	m := newManager(t, &serialDispatcher{}, eng, store)
	require.NoError(t, m.RunJob(ctx, &model.Job{Id: "s-1", Type: model.JOB_START_FLOW, OrganizationId: 1, ContactId: 7, FlowUuid: "welcome"}))
	require.Eventually(t, func() bool {
		live, err := store.GetLiveContext(ctx, 1, 7)
		return err == nil && live.Id == "welcome-2"
	}, 2*time.Second, 10*time.Millisecond)

	all, err := store.ListContexts(ctx, 1, 7)
	require.NoError(t, err)
	live := 0
	for _, fc := range all {
		if fc.State.IsLive() {
			live++
		}
	}
	require.Equal(t, 1, live)
}

// racingEngine creates a context without completing the contact's live one
// on its first attempt, the way a start racing another process does.
type racingEngine struct {
	store    *memory.Store
	attempts int32
}

func (e *racingEngine) Deliver(ctx context.Context, orgId int64, contactId int64, contextId string, signal model.Signal) (*engine.TurnResult, error) {
	return nil, nil
}

func (e *racingEngine) StartByUuid(ctx context.Context, contact *model.Contact, flowUuid string, status model.FlowStatus) (*engine.TurnResult, error) {
	attempt := atomic.AddInt32(&e.attempts, 1)
	if attempt > 1 {
		live, err := e.store.GetLiveContext(ctx, contact.OrganizationId, contact.Id)
		if err == nil {
			live.State = model.COMPLETED
			if err := e.store.SaveContext(ctx, live); err != nil {
				return nil, err
			}
		}
	}
	fc := &model.FlowContext{Id: fmt.Sprintf("%s-%d", flowUuid, attempt), OrganizationId: contact.OrganizationId, ContactId: contact.Id, State: model.ACTIVE}
	if err := e.store.SaveContext(ctx, fc); err != nil {
		return nil, fmt.Errorf("creating flow context %w", err)
	}
	return &engine.TurnResult{Context: fc}, nil
}
