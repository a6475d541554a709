package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/util"
)

const CONTEXT_KEY string = "CTX"
const LIVE_KEY string = "LIVE"
const CONTACT_CONTEXTS_KEY string = "CTXS"

var _ persistence.ContextStore = new(redisContextDao)

type redisContextDao struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.FlowContext]
}

func NewRedisContextDao(baseDao *baseDao) *redisContextDao {
	return &redisContextDao{
		baseDao:        baseDao,
		encoderDecoder: util.NewJsonEncoderDecoder[model.FlowContext](),
	}
}

// SaveContext writes under WATCH on the context and the contact's live index,
// so a concurrent writer makes the transaction fail with a version conflict.
// Creating a live context while the contact holds another one conflicts too.
func (r *redisContextDao) SaveContext(ctx context.Context, fc *model.FlowContext) error {
	key := r.getNamespaceKey(CONTEXT_KEY, fc.Id)
	liveKey := r.getNamespaceKey(LIVE_KEY, id(fc.OrganizationId), id(fc.ContactId))
	listKey := r.getNamespaceKey(CONTACT_CONTEXTS_KEY, id(fc.OrganizationId), id(fc.ContactId))
	next := *fc
	next.Version++
	data, err := r.encoderDecoder.Encode(next)
	if err != nil {
		return err
	}
	err = r.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		exists := true
		if errors.Is(err, rd.Nil) {
			exists = false
		} else if err != nil {
			return storageError(err)
		}
		if fc.Version == 0 && exists {
			return persistence.ErrVersionConflict
		}
		if fc.Version != 0 {
			if !exists {
				return persistence.ErrNotFound
			}
			stored, err := r.encoderDecoder.Decode([]byte(current))
			if err != nil {
				return err
			}
			if stored.Version != fc.Version {
				return persistence.ErrVersionConflict
			}
		}
		liveId, err := tx.Get(ctx, liveKey).Result()
		if err != nil && !errors.Is(err, rd.Nil) {
			return storageError(err)
		}
		if fc.Version == 0 && next.State.IsLive() && len(liveId) != 0 && liveId != fc.Id {
			held, err := r.liveHolder(ctx, tx, liveId)
			if err != nil {
				return err
			}
			if held {
				return persistence.ErrVersionConflict
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, string(data), 0)
			pipe.SAdd(ctx, listKey, fc.Id)
			if next.State.IsLive() {
				pipe.Set(ctx, liveKey, fc.Id, 0)
			} else if liveId == fc.Id {
				pipe.Del(ctx, liveKey)
			}
			return nil
		})
		return err
	}, key, liveKey)
	if err != nil {
		if errors.Is(err, rd.TxFailedErr) {
			return persistence.ErrVersionConflict
		}
		if errors.Is(err, persistence.ErrVersionConflict) || errors.Is(err, persistence.ErrNotFound) {
			return err
		}
		return storageError(err)
	}
	fc.Version = next.Version
	return nil
}

// liveHolder reports whether the context the live index points at is still live.
func (r *redisContextDao) liveHolder(ctx context.Context, tx *rd.Tx, contextId string) (bool, error) {
	value, err := tx.Get(ctx, r.getNamespaceKey(CONTEXT_KEY, contextId)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return false, nil
		}
		return false, storageError(err)
	}
	held, err := r.encoderDecoder.Decode([]byte(value))
	if err != nil {
		return false, err
	}
	return held.State.IsLive(), nil
}

func (r *redisContextDao) GetContext(ctx context.Context, contextId string) (*model.FlowContext, error) {
	key := r.getNamespaceKey(CONTEXT_KEY, contextId)
	value, err := r.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		return nil, storageError(err)
	}
	return r.encoderDecoder.Decode([]byte(value))
}

func (r *redisContextDao) GetLiveContext(ctx context.Context, orgId int64, contactId int64) (*model.FlowContext, error) {
	liveKey := r.getNamespaceKey(LIVE_KEY, id(orgId), id(contactId))
	contextId, err := r.redisClient.Get(ctx, liveKey).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		return nil, storageError(err)
	}
	return r.GetContext(ctx, contextId)
}

func (r *redisContextDao) ListContexts(ctx context.Context, orgId int64, contactId int64) ([]*model.FlowContext, error) {
	listKey := r.getNamespaceKey(CONTACT_CONTEXTS_KEY, id(orgId), id(contactId))
	ids, err := r.redisClient.SMembers(ctx, listKey).Result()
	if err != nil {
		return nil, storageError(err)
	}
	out := make([]*model.FlowContext, 0, len(ids))
	for _, contextId := range ids {
		fc, err := r.GetContext(ctx, contextId)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, fc)
	}
	return out, nil
}
