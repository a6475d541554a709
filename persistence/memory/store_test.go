package memory

import (
	"context"
	"testing"
	"time"

	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/stretchr/testify/require"
)

func TestContextVersioning(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	fc := &model.FlowContext{Id: "c1", OrganizationId: 1, ContactId: 2, State: model.ACTIVE}
	require.NoError(t, store.SaveContext(ctx, fc))
	require.Equal(t, int64(1), fc.Version)

	stale := *fc
	fc.State = model.WAITING_MESSAGE
	require.NoError(t, store.SaveContext(ctx, fc))
	require.ErrorIs(t, store.SaveContext(ctx, &stale), persistence.ErrVersionConflict)
	require.ErrorIs(t, store.SaveContext(ctx, &model.FlowContext{Id: "c1"}), persistence.ErrVersionConflict)
	require.ErrorIs(t, store.SaveContext(ctx, &model.FlowContext{Id: "c9", Version: 4}), persistence.ErrNotFound)

	live, err := store.GetLiveContext(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, model.WAITING_MESSAGE, live.State)

	live.State = model.SUSPENDED
	require.NoError(t, store.SaveContext(ctx, live))
	_, err = store.GetLiveContext(ctx, 1, 2)
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestSecondLiveContextConflicts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	first := &model.FlowContext{Id: "a", OrganizationId: 1, ContactId: 7, State: model.ACTIVE}
	require.NoError(t, store.SaveContext(ctx, first))

	second := &model.FlowContext{Id: "b", OrganizationId: 1, ContactId: 7, State: model.ACTIVE}
	require.ErrorIs(t, store.SaveContext(ctx, second), persistence.ErrVersionConflict)
	require.Zero(t, second.Version)
	require.NoError(t, store.SaveContext(ctx, &model.FlowContext{Id: "c", OrganizationId: 1, ContactId: 7, State: model.COMPLETED}))
	require.NoError(t, store.SaveContext(ctx, &model.FlowContext{Id: "d", OrganizationId: 1, ContactId: 8, State: model.ACTIVE}))

	first.State = model.COMPLETED
	require.NoError(t, store.SaveContext(ctx, first))
	require.NoError(t, store.SaveContext(ctx, second))
	live, err := store.GetLiveContext(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, "b", live.Id)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	fc := &model.FlowContext{Id: "c1", OrganizationId: 1, ContactId: 2, State: model.ACTIVE, Results: map[string]any{"a": "1"}}
	require.NoError(t, store.SaveContext(ctx, fc))
	fc.Results["a"] = "changed"
	got, err := store.GetContext(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "1", got.Results["a"])
}

func TestPollDue(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.PushJob(ctx, model.Job{Id: "later", DueAt: now.Add(time.Minute)}))
	require.NoError(t, store.PushJob(ctx, model.Job{Id: "b", DueAt: now.Add(-time.Second)}))
	require.NoError(t, store.PushJob(ctx, model.Job{Id: "a", DueAt: now.Add(-time.Minute)}))

	jobs, err := store.PollDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "a", jobs[0].Id)

	jobs, err = store.PollDue(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "b", jobs[0].Id)
	require.Len(t, store.PendingJobs(), 1)
}

func TestCountsAndMessages(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, store.IncrementCount(ctx, model.FlowCount{OrganizationId: 1, FlowUuid: "f", Uuid: "n1", Kind: model.COUNT_NODE, Count: 1}))
	}
	counts, err := store.GetCounts(ctx, 1, "f")
	require.NoError(t, err)
	require.Equal(t, []model.FlowCount{{OrganizationId: 1, FlowUuid: "f", Uuid: "n1", Kind: model.COUNT_NODE, Count: 2}}, counts)

	require.NoError(t, store.SaveMessage(ctx, &model.Message{OrganizationId: 1, ContactId: 3, Body: "one"}))
	require.NoError(t, store.SaveMessage(ctx, &model.Message{OrganizationId: 1, ContactId: 3, Body: "two"}))
	msgs, err := store.ListMessages(ctx, 1, 3, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "two", msgs[0].Body)

	_, err = store.PopOutbound(ctx, 1)
	require.ErrorIs(t, err, persistence.ErrEmptyQueue)
}
