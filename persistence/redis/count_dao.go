package redis

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
)

const COUNT_KEY string = "COUNT"

var _ persistence.CountStore = new(redisCountDao)

type redisCountDao struct {
	*baseDao
}

func NewRedisCountDao(baseDao *baseDao) *redisCountDao {
	return &redisCountDao{baseDao: baseDao}
}

func (r *redisCountDao) IncrementCount(ctx context.Context, count model.FlowCount) error {
	key := r.getNamespaceKey(COUNT_KEY, id(count.OrganizationId), count.FlowUuid)
	field := count.Uuid + ":" + string(count.Kind)
	if err := r.redisClient.HIncrBy(ctx, key, field, count.Count).Err(); err != nil {
		return storageError(err)
	}
	return nil
}

func (r *redisCountDao) GetCounts(ctx context.Context, orgId int64, flowUuid string) ([]model.FlowCount, error) {
	key := r.getNamespaceKey(COUNT_KEY, id(orgId), flowUuid)
	values, err := r.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, storageError(err)
	}
	out := make([]model.FlowCount, 0, len(values))
	for field, value := range values {
		idx := strings.LastIndex(field, ":")
		if idx < 0 {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, model.FlowCount{
			OrganizationId: orgId,
			FlowUuid:       flowUuid,
			Uuid:           field[:idx],
			Kind:           model.FlowCountKind(field[idx+1:]),
			Count:          n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Uuid == out[j].Uuid {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Uuid < out[j].Uuid
	})
	return out, nil
}
