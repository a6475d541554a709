package redis

import (
	"context"
	"errors"
	"sort"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/util"
)

const FLOW_KEY string = "FLOW"

var _ persistence.FlowStore = new(redisFlowDao)

type redisFlowDao struct {
	*baseDao
	encoderDecoder *util.JsonEncDec[model.FlowDocument]
}

func NewRedisFlowDao(baseDao *baseDao) *redisFlowDao {
	return &redisFlowDao{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.FlowDocument](),
	}
}

func (r *redisFlowDao) SaveFlow(ctx context.Context, doc *model.FlowDocument) error {
	key := r.getNamespaceKey(FLOW_KEY, id(doc.OrganizationId))
	data, err := r.encoderDecoder.Encode(*doc)
	if err != nil {
		return err
	}
	if err := r.redisClient.HSet(ctx, key, []string{doc.Uuid + ":" + string(doc.Status), string(data)}).Err(); err != nil {
		return storageError(err)
	}
	return nil
}

func (r *redisFlowDao) GetFlow(ctx context.Context, orgId int64, uuid string, status model.FlowStatus) (*model.FlowDocument, error) {
	key := r.getNamespaceKey(FLOW_KEY, id(orgId))
	value, err := r.redisClient.HGet(ctx, key, uuid+":"+string(status)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		return nil, storageError(err)
	}
	return r.encoderDecoder.Decode([]byte(value))
}

func (r *redisFlowDao) ListFlows(ctx context.Context, orgId int64) ([]*model.FlowDocument, error) {
	key := r.getNamespaceKey(FLOW_KEY, id(orgId))
	values, err := r.redisClient.HVals(ctx, key).Result()
	if err != nil {
		return nil, storageError(err)
	}
	docs, err := r.encoderDecoder.DecodeAll(values)
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Id == docs[j].Id {
			return docs[i].Status < docs[j].Status
		}
		return docs[i].Id < docs[j].Id
	})
	return docs, nil
}
