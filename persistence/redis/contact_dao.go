package redis

import (
	"context"
	"errors"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/util"
)

const CONTACT_KEY string = "CONTACT"
const MESSAGE_KEY string = "MSG"

var _ persistence.ContactStore = new(redisContactDao)
var _ persistence.MessageStore = new(redisContactDao)

type redisContactDao struct {
	*baseDao
	history        int
	encoderDecoder *util.JsonEncDec[model.Contact]
	msgEncDec      *util.JsonEncDec[model.Message]
}

func NewRedisContactDao(baseDao *baseDao, history int) *redisContactDao {
	if history <= 0 {
		history = 1000
	}
	return &redisContactDao{
		baseDao:        baseDao,
		history:        history,
		encoderDecoder: util.NewJsonEncoderDecoder[model.Contact](),
		msgEncDec:      util.NewJsonEncoderDecoder[model.Message](),
	}
}

func (r *redisContactDao) GetContact(ctx context.Context, orgId int64, contactId int64) (*model.Contact, error) {
	key := r.getNamespaceKey(CONTACT_KEY, id(orgId), id(contactId))
	value, err := r.redisClient.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.ErrNotFound
		}
		return nil, storageError(err)
	}
	return r.encoderDecoder.Decode([]byte(value))
}

func (r *redisContactDao) SaveContact(ctx context.Context, c *model.Contact) error {
	key := r.getNamespaceKey(CONTACT_KEY, id(c.OrganizationId), id(c.Id))
	data, err := r.encoderDecoder.Encode(*c)
	if err != nil {
		return err
	}
	if err := r.redisClient.Set(ctx, key, string(data), 0).Err(); err != nil {
		return storageError(err)
	}
	return nil
}

func (r *redisContactDao) SetField(ctx context.Context, orgId int64, contactId int64, field string, value string) error {
	key := r.getNamespaceKey(CONTACT_KEY, id(orgId), id(contactId))
	err := r.redisClient.Watch(ctx, func(tx *rd.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, rd.Nil) {
				return persistence.ErrNotFound
			}
			return storageError(err)
		}
		c, err := r.encoderDecoder.Decode([]byte(current))
		if err != nil {
			return err
		}
		if c.Fields == nil {
			c.Fields = make(map[string]string)
		}
		c.Fields[field] = value
		c.UpdatedAt = time.Now()
		data, err := r.encoderDecoder.Encode(*c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
			pipe.Set(ctx, key, string(data), 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, rd.TxFailedErr) {
		return persistence.ErrVersionConflict
	}
	return err
}

func (r *redisContactDao) SaveMessage(ctx context.Context, msg *model.Message) error {
	key := r.getNamespaceKey(MESSAGE_KEY, id(msg.OrganizationId), id(msg.ContactId))
	data, err := r.msgEncDec.Encode(*msg)
	if err != nil {
		return err
	}
	_, err = r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		pipe.LPush(ctx, key, string(data))
		pipe.LTrim(ctx, key, 0, int64(r.history-1))
		return nil
	})
	if err != nil {
		return storageError(err)
	}
	return nil
}

func (r *redisContactDao) ListMessages(ctx context.Context, orgId int64, contactId int64, limit int) ([]*model.Message, error) {
	key := r.getNamespaceKey(MESSAGE_KEY, id(orgId), id(contactId))
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	values, err := r.redisClient.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, storageError(err)
	}
	return r.msgEncDec.DecodeAll(values)
}
