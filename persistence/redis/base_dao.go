package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/convoflow/persistence"
)

type baseDao struct {
	redisClient rd.UniversalClient
	namespace   string
}

func newBaseDao(conf Config) *baseDao {
	redisClient := rd.NewUniversalClient(&rd.UniversalOptions{
		Addrs:    conf.Addrs,
		Password: conf.Password,
		PoolSize: conf.PoolSize,
	})
	return &baseDao{
		redisClient: redisClient,
		namespace:   conf.Namespace,
	}
}

func (bs *baseDao) getNamespaceKey(args ...string) string {
	return fmt.Sprintf("%s:%s", bs.namespace, strings.Join(args, ":"))
}

func (bs *baseDao) addToSortedSet(ctx context.Context, key string, message string, at time.Time) error {
	member := rd.Z{
		Score:  float64(at.UnixMilli()),
		Member: message,
	}
	if err := bs.redisClient.ZAdd(ctx, key, member).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// getExpiredFromSortedSet claims up to limit members scored at or before now.
// A member is returned only by the caller whose ZREM removed it, so
// concurrent pollers never hand out the same member twice.
func (bs *baseDao) getExpiredFromSortedSet(ctx context.Context, key string, now time.Time, limit int) ([]string, error) {
	opt := &rd.ZRangeBy{
		Min: strconv.Itoa(0),
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	values, err := bs.redisClient.ZRangeByScore(ctx, key, opt).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []string{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(values) == 0 {
		return []string{}, nil
	}
	pipe := bs.redisClient.Pipeline()
	removed := make([]*rd.IntCmd, len(values))
	for i, v := range values {
		removed[i] = pipe.ZRem(ctx, key, v)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	claimed := make([]string, 0, len(values))
	for i, v := range values {
		if removed[i].Val() == 1 {
			claimed = append(claimed, v)
		}
	}
	return claimed, nil
}

func (bs *baseDao) Ping(ctx context.Context) error {
	return bs.redisClient.Ping(ctx).Err()
}

func (bs *baseDao) Close() error {
	return bs.redisClient.Close()
}

func storageError(err error) error {
	return persistence.StorageLayerError{Message: err.Error()}
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
