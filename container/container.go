package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mohitkumar/convoflow/config"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/persistence/memory"
	rd "github.com/mohitkumar/convoflow/persistence/redis"
	"github.com/mohitkumar/convoflow/persistence/sqlite"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type DIContiner struct {
	initialized bool
	storage     *persistence.Storage
	redisConn   rd.Conn
	db          *sql.DB
}

func (p *DIContiner) setInitialized() {
	p.initialized = true
}

func NewDiContainer() *DIContiner {
	return &DIContiner{
		initialized: false,
	}
}

// Init builds the storage for conf.StorageType. sqlite keeps flows and
// contexts in the database and everything else in memory.
func (d *DIContiner) Init(conf config.Config) error {
	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS:
		rdConf := rd.Config{
			Addrs:          conf.RedisConfig.Addrs,
			Namespace:      conf.RedisConfig.Namespace,
			Password:       conf.RedisConfig.Password,
			PoolSize:       conf.RedisConfig.PoolSize,
			MessageHistory: conf.RedisConfig.MessageHistory,
		}
		d.storage, d.redisConn = rd.NewRedisStorage(rdConf)
		if err := d.redisConn.Ping(context.Background()); err != nil {
			return fmt.Errorf("redis not reachable %w", err)
		}
	case config.STORAGE_TYPE_SQLITE:
		db, err := sql.Open("sqlite", conf.SqliteConfig.Path)
		if err != nil {
			return err
		}
		store, err := sqlite.NewStore(db)
		if err != nil {
			db.Close()
			return err
		}
		d.db = db
		d.storage = memory.NewStore().Storage()
		d.storage.Flows = store
		d.storage.Contexts = store
	case config.STORAGE_TYPE_INMEM:
		d.storage = memory.NewStore().Storage()
	default:
		return fmt.Errorf("unsupported storage type %q", conf.StorageType)
	}
	logger.Info("storage initialized", zap.String("type", string(conf.StorageType)))
	d.setInitialized()
	return nil
}

func (d *DIContiner) GetStorage() *persistence.Storage {
	if !d.initialized {
		panic("persistence not initalized")
	}
	return d.storage
}

func (d *DIContiner) Close() error {
	if d.redisConn != nil {
		return d.redisConn.Close()
	}
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
