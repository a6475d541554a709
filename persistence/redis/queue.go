package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/util"
	"go.uber.org/zap"
)

const DELAY_QUEUE string = "delay"
const OUTBOUND_QUEUE string = "outbound"

var _ persistence.DelayQueue = new(redisQueue)
var _ persistence.OutboundQueue = new(redisQueue)

type redisQueue struct {
	*baseDao
	jobEncDec *util.JsonEncDec[model.Job]
	msgEncDec *util.JsonEncDec[model.OutboundMessage]
}

func NewRedisQueue(baseDao *baseDao) *redisQueue {
	return &redisQueue{
		baseDao:   baseDao,
		jobEncDec: util.NewJsonEncoderDecoder[model.Job](),
		msgEncDec: util.NewJsonEncoderDecoder[model.OutboundMessage](),
	}
}

func (rq *redisQueue) PushJob(ctx context.Context, job model.Job) error {
	data, err := rq.jobEncDec.Encode(job)
	if err != nil {
		return err
	}
	return rq.addToSortedSet(ctx, rq.getNamespaceKey(DELAY_QUEUE), string(data), job.DueAt)
}

func (rq *redisQueue) PollDue(ctx context.Context, now time.Time, limit int) ([]*model.Job, error) {
	values, err := rq.getExpiredFromSortedSet(ctx, rq.getNamespaceKey(DELAY_QUEUE), now, limit)
	if err != nil {
		return nil, err
	}
	jobs := make([]*model.Job, 0, len(values))
	for _, v := range values {
		job, err := rq.jobEncDec.Decode([]byte(v))
		if err != nil {
			logger.Error("dropping malformed delay job", zap.String("job", v), zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (rq *redisQueue) PushOutbound(ctx context.Context, msg model.OutboundMessage) error {
	queueName := rq.getNamespaceKey(OUTBOUND_QUEUE)
	data, err := rq.msgEncDec.Encode(msg)
	if err != nil {
		return err
	}
	if err := rq.redisClient.LPush(ctx, queueName, string(data)).Err(); err != nil {
		logger.Error("error while push to redis list", zap.String("queue", queueName), zap.Error(err))
		return storageError(err)
	}
	return nil
}

func (rq *redisQueue) PopOutbound(ctx context.Context, batchSize int) ([]*model.OutboundMessage, error) {
	queueName := rq.getNamespaceKey(OUTBOUND_QUEUE)
	res, err := rq.redisClient.RPopCount(ctx, queueName, batchSize).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrEmptyQueue
		}
		logger.Error("error while pop from redis list", zap.String("queue", queueName), zap.Error(err))
		return nil, storageError(err)
	}
	if len(res) == 0 {
		return nil, persistence.ErrEmptyQueue
	}
	return rq.msgEncDec.DecodeAll(res)
}
