package config

import (
	"time"

	"github.com/mohitkumar/convoflow/analytics"
)

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"
const STORAGE_TYPE_SQLITE StorageType = "sqlite"

type Config struct {
	RedisConfig     RedisStorageConfig
	SqliteConfig    SqliteStorageConfig
	HttpPort        int
	StorageType     StorageType
	ClusterConfig   ClusterConfig
	EngineConfig    EngineConfig
	WebhookConfig   WebhookConfig
	DeliveryConfig  DeliveryConfig
	AnalyticsConfig analytics.DataCollectorConfig
	// OrgConfigFile is the YAML file with organization settings; empty means defaults.
	OrgConfigFile   string
	FlowCacheTTL    time.Duration
	CounterCapacity int
}

type ClusterConfig struct {
	NodeName        string
	PartitionCount  int
	ShardCapacity   int
	// ConflictRetries reruns a turn that lost an optimistic version check
	// to a writer in another process.
	ConflictRetries int
}

type EngineConfig struct {
	MaxSteps             int
	PollInterval         time.Duration
	PollBatchSize        int
	LegacySubflowSignals bool
	LegacyEchoMatch      bool
}

type WebhookConfig struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// DeliveryConfig points the outbound relay at the channel endpoint. An empty
// Url logs outbound messages instead of sending them.
type DeliveryConfig struct {
	Url        string
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

type RedisStorageConfig struct {
	Addrs          []string
	Namespace      string
	Password       string
	PoolSize       int
	MessageHistory int
}

type SqliteStorageConfig struct {
	Path string
}
