package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohitkumar/convoflow/agent"
	"github.com/mohitkumar/convoflow/analytics"
	"github.com/mohitkumar/convoflow/config"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
	logLevel string
	logJson  bool
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("redis-password", "", "redis password")
	cmd.Flags().Int("redis-pool-size", 0, "redis connection pool size, 0 uses the client default")
	cmd.Flags().String("namespace", "convoflow", "namespace used in storage")
	cmd.Flags().Int("message-history", 100, "inbound messages kept per contact")
	cmd.Flags().String("storage-impl", "redis", "implementation of underline storage: redis, memory or sqlite")
	cmd.Flags().String("sqlite-path", "convoflow.db", "sqlite database file for the sqlite storage")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("node-name", "local", "name of this node in the partition ring")
	cmd.Flags().Int("partitions", 71, "number of contact partitions")
	cmd.Flags().Int("shard-capacity", 256, "queued turns per partition")
	cmd.Flags().Int("conflict-retries", 3, "reruns of a turn that hit a context version conflict")
	cmd.Flags().Int("max-steps", 100, "node steps allowed in one turn")
	cmd.Flags().Duration("poll-interval", time.Second, "delay queue poll interval")
	cmd.Flags().Int("poll-batch", 100, "due jobs taken per poll")
	cmd.Flags().Int("webhook-retries", 3, "retries for a webhook failing with a network error or 5xx")
	cmd.Flags().Duration("webhook-retry-interval", 500*time.Millisecond, "wait between webhook retries")
	cmd.Flags().String("delivery-url", "", "channel endpoint outbound messages are posted to, empty logs them")
	cmd.Flags().Duration("delivery-interval", time.Second, "outbound relay interval")
	cmd.Flags().Int("delivery-batch", 50, "outbound messages sent per relay tick")
	cmd.Flags().Int("delivery-retries", 3, "retries for a failed outbound delivery")
	cmd.Flags().Duration("flow-cache-ttl", 5*time.Minute, "how long a compiled organization index is kept")
	cmd.Flags().Int("counter-capacity", 4096, "buffered flow count increments")
	cmd.Flags().String("org-config", "", "YAML file with organization settings")
	cmd.Flags().String("analytics-file", "", "file execution errors are written to, empty uses the main log")
	cmd.Flags().Bool("legacy-subflow-signals", false, "treat completed/expired/success/failure message bodies as subflow results")
	cmd.Flags().Bool("legacy-echo-match", false, "skip messages containing the organization's opt-in prompt")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().Bool("log-json", true, "log as json")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if len(configFile) != 0 {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			// it's ok if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Password = viper.GetString("redis-password")
	c.cfg.RedisConfig.PoolSize = viper.GetInt("redis-pool-size")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.RedisConfig.MessageHistory = viper.GetInt("message-history")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.SqliteConfig.Path = viper.GetString("sqlite-path")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.ClusterConfig.NodeName = viper.GetString("node-name")
	c.cfg.ClusterConfig.PartitionCount = viper.GetInt("partitions")
	c.cfg.ClusterConfig.ShardCapacity = viper.GetInt("shard-capacity")
	c.cfg.ClusterConfig.ConflictRetries = viper.GetInt("conflict-retries")
	c.cfg.EngineConfig.MaxSteps = viper.GetInt("max-steps")
	c.cfg.EngineConfig.PollInterval = viper.GetDuration("poll-interval")
	c.cfg.EngineConfig.PollBatchSize = viper.GetInt("poll-batch")
	c.cfg.EngineConfig.LegacySubflowSignals = viper.GetBool("legacy-subflow-signals")
	c.cfg.EngineConfig.LegacyEchoMatch = viper.GetBool("legacy-echo-match")
	c.cfg.WebhookConfig.MaxRetries = viper.GetInt("webhook-retries")
	c.cfg.WebhookConfig.RetryInterval = viper.GetDuration("webhook-retry-interval")
	c.cfg.DeliveryConfig.Url = viper.GetString("delivery-url")
	c.cfg.DeliveryConfig.Interval = viper.GetDuration("delivery-interval")
	c.cfg.DeliveryConfig.BatchSize = viper.GetInt("delivery-batch")
	c.cfg.DeliveryConfig.MaxRetries = viper.GetInt("delivery-retries")
	c.cfg.FlowCacheTTL = viper.GetDuration("flow-cache-ttl")
	c.cfg.CounterCapacity = viper.GetInt("counter-capacity")
	c.cfg.OrgConfigFile = viper.GetString("org-config")
	if file := viper.GetString("analytics-file"); len(file) != 0 {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{FileName: file, CollectorType: analytics.LOG_FILE_DATA_COLLECTOR}
	} else {
		c.cfg.AnalyticsConfig = analytics.DataCollectorConfig{CollectorType: analytics.LOGGER_DATA_COLLECTOR}
	}
	c.cfg.logLevel = viper.GetString("log-level")
	c.cfg.logJson = viper.GetBool("log-json")
	return logger.Init(c.cfg.logLevel, c.cfg.logJson)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	defer logger.Sync()
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	err = agent.Start()
	if err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "convoflow",
		Short:   "per-contact conversational flow engine",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
