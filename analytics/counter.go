package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/util"
	"go.uber.org/zap"
)

// FlowCounter records node visits and exit traversals off the turn's path.
// Record never blocks: when the buffer is full the increment is dropped.
type FlowCounter struct {
	worker *util.Worker[model.FlowCount]
	wg     sync.WaitGroup
}

func NewFlowCounter(store persistence.CountStore, capacity int) *FlowCounter {
	fc := &FlowCounter{}
	fc.worker = util.NewWorker("flow-counter", &fc.wg, func(count model.FlowCount) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return store.IncrementCount(ctx, count)
	}, capacity)
	return fc
}

func (fc *FlowCounter) Start() {
	fc.worker.Start()
}

func (fc *FlowCounter) Stop() {
	fc.worker.Stop()
	fc.wg.Wait()
}

func (fc *FlowCounter) Record(orgId int64, flowUuid string, uuid string, kind model.FlowCountKind) {
	count := model.FlowCount{OrganizationId: orgId, FlowUuid: flowUuid, Uuid: uuid, Kind: kind, Count: 1}
	select {
	case fc.worker.Sender() <- count:
	default:
		logger.Warn("flow count buffer full, dropping increment", zap.String("flow", flowUuid), zap.String("uuid", uuid))
	}
}
