package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence/memory"
	"github.com/stretchr/testify/require"
)

func TestFlowCounter(t *testing.T) {
	store := memory.NewStore()
	counter := NewFlowCounter(store, 16)
	counter.Start()
	counter.Record(1, "f", "n1", model.COUNT_NODE)
	counter.Record(1, "f", "n1", model.COUNT_NODE)
	counter.Record(1, "f", "e1", model.COUNT_EXIT)

	require.Eventually(t, func() bool {
		counts, _ := store.GetCounts(context.Background(), 1, "f")
		return len(counts) == 2 && counts[1].Count == 2
	}, time.Second, 10*time.Millisecond)
	counter.Stop()
}

func TestFlowCounterDropsWhenFull(t *testing.T) {
	store := memory.NewStore()
	counter := NewFlowCounter(store, 1)
	counter.Record(1, "f", "n1", model.COUNT_NODE)
	counter.Record(1, "f", "n1", model.COUNT_NODE)
	counter.Start()
	require.Eventually(t, func() bool {
		counts, _ := store.GetCounts(context.Background(), 1, "f")
		return len(counts) == 1 && counts[0].Count == 1
	}, time.Second, 10*time.Millisecond)
	counter.Stop()
}

func TestLogFileDataCollector(t *testing.T) {
	c, err := NewDataCollector(DataCollectorConfig{CollectorType: LOG_FILE_DATA_COLLECTOR, FileName: t.TempDir() + "/analytics.log"})
	require.NoError(t, err)
	fc := &model.FlowContext{Id: "c1", OrganizationId: 1, ContactId: 2, FlowUuid: "f"}
	c.RecordStepFailure(fc, "n1", "unsupported node")
	c.RecordStepSuccess(fc, "n1", map[string]any{"state": "completed"})
}
