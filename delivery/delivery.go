package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohitkumar/convoflow/action"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/util"
	"go.uber.org/zap"
)

const DEFAULT_BATCH_SIZE = 50

var _ action.Sender = new(QueueSender)

// QueueSender hands send requests to the outbound queue; the relay drains it.
type QueueSender struct {
	queue persistence.OutboundQueue
}

func NewQueueSender(queue persistence.OutboundQueue) *QueueSender {
	return &QueueSender{queue: queue}
}

func (s *QueueSender) Send(ctx context.Context, msg model.OutboundMessage) error {
	if err := s.queue.PushOutbound(ctx, msg); err != nil {
		return fmt.Errorf("queueing outbound message failed %w", err)
	}
	return nil
}

// Transport is the channel integration that actually delivers a message.
type Transport interface {
	Deliver(ctx context.Context, msg *model.OutboundMessage) error
}

type RelayConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Relay periodically moves queued outbound messages to the transport.
type Relay struct {
	queue     persistence.OutboundQueue
	transport Transport
	conf      RelayConfig
	tw        *util.TickWorker
	stop      chan struct{}
}

func NewRelay(queue persistence.OutboundQueue, transport Transport, conf RelayConfig, wg *sync.WaitGroup) *Relay {
	if conf.BatchSize <= 0 {
		conf.BatchSize = DEFAULT_BATCH_SIZE
	}
	if conf.Interval <= 0 {
		conf.Interval = time.Second
	}
	r := &Relay{
		queue:     queue,
		transport: transport,
		conf:      conf,
		stop:      make(chan struct{}),
	}
	r.tw = util.NewTickWorker("outbound-relay", conf.Interval, r.stop, r.tick, wg)
	return r
}

func (r *Relay) Start() {
	r.tw.Start()
}

func (r *Relay) Stop() {
	r.tw.Stop()
}

func (r *Relay) tick(now time.Time) {
	if _, err := r.Drain(context.Background()); err != nil {
		logger.Error("error draining outbound queue", zap.Error(err))
	}
}

// Drain delivers one batch and returns how many messages were delivered.
// A message the transport rejects is logged and dropped.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	msgs, err := r.queue.PopOutbound(ctx, r.conf.BatchSize)
	if err != nil {
		if errors.Is(err, persistence.ErrEmptyQueue) {
			return 0, nil
		}
		return 0, err
	}
	delivered := 0
	for _, msg := range msgs {
		if err := r.transport.Deliver(ctx, msg); err != nil {
			logger.Error("outbound message dropped", zap.Int64("contact", msg.ContactId), zap.String("flow", msg.FlowUuid), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered, nil
}
