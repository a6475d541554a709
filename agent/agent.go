package agent

import (
	"sync"

	"github.com/mohitkumar/convoflow/action"
	"github.com/mohitkumar/convoflow/analytics"
	"github.com/mohitkumar/convoflow/cache"
	"github.com/mohitkumar/convoflow/cluster"
	"github.com/mohitkumar/convoflow/config"
	"github.com/mohitkumar/convoflow/container"
	"github.com/mohitkumar/convoflow/delivery"
	"github.com/mohitkumar/convoflow/dispatch"
	"github.com/mohitkumar/convoflow/engine"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/mohitkumar/convoflow/orgconfig"
	"github.com/mohitkumar/convoflow/periodic"
	"github.com/mohitkumar/convoflow/rest"
	"github.com/mohitkumar/convoflow/shard"
	"github.com/mohitkumar/convoflow/shard/executor"
	"github.com/mohitkumar/convoflow/webhook"
)

type Agent struct {
	Config       config.Config
	diContainer  *container.DIContiner
	orgs         *orgconfig.Registry
	flowCache    *cache.FlowCache
	counter      *analytics.FlowCounter
	collector    analytics.FlowDataCollector
	webhooks     *webhook.Runner
	executor     *engine.Executor
	dispatcher   *dispatch.Dispatcher
	ring         *cluster.Ring
	shards       *shard.Manager
	relay        *delivery.Relay
	httpServer   *rest.Server
	shutdown     bool
	shutdowns    chan struct{}
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(config config.Config) (*Agent, error) {
	a := &Agent{
		Config:    config,
		shutdowns: make(chan struct{}),
	}
	setup := []func() error{
		a.setupStorage,
		a.setupOrganizations,
		a.setupFlowCache,
		a.setupAnalytics,
		a.setupEngine,
		a.setupShards,
		a.setupDelivery,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	a.diContainer = container.NewDiContainer()
	return a.diContainer.Init(a.Config)
}

func (a *Agent) setupOrganizations() error {
	if len(a.Config.OrgConfigFile) == 0 {
		a.orgs = orgconfig.NewRegistry()
		return nil
	}
	var err error
	a.orgs, err = orgconfig.Load(a.Config.OrgConfigFile)
	return err
}

func (a *Agent) setupFlowCache() error {
	a.flowCache = cache.NewFlowCache(a.diContainer.GetStorage().Flows, a.Config.FlowCacheTTL)
	return nil
}

func (a *Agent) setupAnalytics() error {
	var err error
	a.collector, err = analytics.NewDataCollector(a.Config.AnalyticsConfig)
	if err != nil {
		return err
	}
	a.counter = analytics.NewFlowCounter(a.diContainer.GetStorage().Counts, a.Config.CounterCapacity)
	return nil
}

func (a *Agent) setupEngine() error {
	storage := a.diContainer.GetStorage()
	conf := a.Config.EngineConfig
	a.webhooks = webhook.NewRunner(webhook.NewClient(nil, webhook.ClientConfig{
		MaxRetries:    a.Config.WebhookConfig.MaxRetries,
		RetryInterval: a.Config.WebhookConfig.RetryInterval,
	}))
	scheduler := engine.NewQueueScheduler(storage.Delay)
	services := &action.Services{
		Sender:    delivery.NewQueueSender(storage.Outbound),
		Contacts:  storage.Contacts,
		Webhooks:  a.webhooks,
		Scheduler: scheduler,
	}
	a.executor = engine.NewExecutor(a.flowCache, storage.Contexts, storage.Contacts, services, a.counter, a.collector,
		engine.Config{MaxSteps: conf.MaxSteps, LegacySubflowSignals: conf.LegacySubflowSignals})
	runner := periodic.NewRunner(a.executor, storage.Contacts, nil)
	a.dispatcher = dispatch.NewDispatcher(a.executor, a.flowCache, storage, scheduler, a.orgs, runner,
		dispatch.Config{LegacyEchoMatch: conf.LegacyEchoMatch}, nil)
	return nil
}

func (a *Agent) setupShards() error {
	clusterConf := a.Config.ClusterConfig
	a.ring = cluster.NewRing(cluster.RingConfig{PartitionCount: clusterConf.PartitionCount})
	nodeName := clusterConf.NodeName
	if len(nodeName) == 0 {
		nodeName = "local"
	}
	a.ring.Join(nodeName, true)
	storage := a.diContainer.GetStorage()
	a.shards = shard.NewManager(a.ring, a.dispatcher, a.executor, storage.Contacts, shard.Config{ShardCapacity: clusterConf.ShardCapacity, ConflictRetries: clusterConf.ConflictRetries}, &a.wg)
	a.shards.RegisterExecutor("job-executor", executor.NewJobExecutor(storage.Delay, a.shards,
		a.Config.EngineConfig.PollInterval, a.Config.EngineConfig.PollBatchSize, &a.wg))
	a.webhooks.Bind(a.shards)
	return nil
}

func (a *Agent) setupDelivery() error {
	conf := a.Config.DeliveryConfig
	var transport delivery.Transport = delivery.LogTransport{}
	if len(conf.Url) != 0 {
		transport = delivery.NewHttpTransport(conf.Url, nil, conf.MaxRetries, conf.Interval)
	}
	a.relay = delivery.NewRelay(a.diContainer.GetStorage().Outbound, transport,
		delivery.RelayConfig{Interval: conf.Interval, BatchSize: conf.BatchSize}, &a.wg)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.shards, a.flowCache, a.webhooks, a.diContainer.GetStorage())
	if err != nil {
		return err
	}
	return nil
}

func (a *Agent) startWorkers() {
	a.counter.Start()
	a.shards.Start()
	a.relay.Start()
}

func (a *Agent) Start() error {
	a.startWorkers()
	go func() {
		if err := a.httpServer.Start(); err != nil {
			_ = a.Shutdown()
			panic(err)
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	close(a.shutdowns)

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			a.relay.Stop()
			a.webhooks.Stop()
			a.shards.Stop()
			a.counter.Stop()
			return nil
		},
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	return a.diContainer.Close()
}
