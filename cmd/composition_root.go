package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	httpadapter "orderdispatch/internal/adapters/in/http"
	"orderdispatch/internal/adapters/out/broker"
	"orderdispatch/internal/adapters/out/memory"
	"orderdispatch/internal/adapters/out/postgres"
	"orderdispatch/internal/adapters/out/publisher"
	redisadapter "orderdispatch/internal/adapters/out/redis"
	"orderdispatch/internal/core/application/ingress"
	"orderdispatch/internal/core/application/usecases/commands"
	"orderdispatch/internal/core/application/usecases/queries"
	"orderdispatch/internal/core/domain/services"
	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/jobs"

	goredis "github.com/redis/go-redis/v9"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// CompositionRoot owns the long-lived adapters and builds the handlers on
// top of them.
type CompositionRoot struct {
	config     Config
	logger     *slog.Logger
	clock      ports.Clock
	uowFactory ports.UnitOfWorkFactory
	dispatcher services.OrderDispatcher
	policy     services.DispatchPolicy
	admission  ports.AdmissionController
	sequences  ports.SequenceAuthority
	dedup      ports.DedupWindow
	publisher  ports.OutcomePublisher
	closers    []func() error
}

// NewCompositionRoot connects to storage, Redis and the broker. Call Close to
// release them.
func NewCompositionRoot(ctx context.Context, config Config, logger *slog.Logger) (*CompositionRoot, error) {
	c := &CompositionRoot{
		config: config,
		logger: logger,
		clock:  ports.SystemClock,
	}

	if err := c.init(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *CompositionRoot) init(ctx context.Context) error {
	var err error

	c.dispatcher, err = services.NewOrderDispatcher(c.config.MaxDistanceKm, c.config.AgentLocationTTL)
	if err != nil {
		return err
	}
	c.policy, err = services.NewDispatchPolicy(
		c.config.MaxDispatchAttempts, c.config.DispatchBackoffBase, c.config.DispatchBackoffMax,
	)
	if err != nil {
		return err
	}

	if c.uowFactory, err = c.openStorage(); err != nil {
		return err
	}

	redisClient, err := redisadapter.NewClient(ctx, redisadapter.Config{
		Addr:     c.config.RedisAddr,
		Password: c.config.RedisPassword,
		DB:       c.config.RedisDB,
	})
	if err != nil {
		return err
	}
	c.closers = append(c.closers, redisClient.Close)

	c.admission, err = redisadapter.NewTokenBucketAdmission(redisClient, redisadapter.AdmissionConfig{
		Tenant: redisadapter.Bucket{
			Capacity: c.config.AdmissionCapacity,
			Refill:   c.config.AdmissionRefill,
			Interval: c.config.AdmissionInterval,
		},
		Global: redisadapter.Bucket{
			Capacity: c.config.GlobalAdmissionCapacity,
			Refill:   c.config.GlobalAdmissionRefill,
			Interval: c.config.AdmissionInterval,
		},
	}, c.clock)
	if err != nil {
		return err
	}
	c.sequences = redisadapter.NewSequenceAuthority(redisClient)
	c.dedup = redisadapter.NewDedupWindow(redisClient, c.config.DedupWindow)

	return c.openPublisher(ctx, redisClient)
}

func (c *CompositionRoot) openStorage() (ports.UnitOfWorkFactory, error) {
	if c.config.Storage == StorageMemory {
		c.logger.Warn("using in-memory storage; state is lost on restart")
		return memory.NewUnitOfWorkFactory(memory.NewStore()), nil
	}

	db, err := gorm.Open(gormpostgres.Open(c.config.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, sqlDB.Close)

	if err = postgres.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return postgres.NewGormUnitOfWorkFactory(db), nil
}

func (c *CompositionRoot) openPublisher(ctx context.Context, redisClient *goredis.Client) error {
	b, err := broker.NewBroker(ctx, broker.Settings{
		Type:     c.config.BrokerType,
		URL:      c.config.BrokerURL,
		Exchange: c.config.BrokerExchange,
		Redis:    redisClient,
	}, c.logger)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, b.Close)

	publisherConfig := publisher.DefaultConfig()
	publisherConfig.Topic = c.config.OutcomeTopic
	publisherConfig.MaxRetries = c.config.PublishMaxRetries
	publisherConfig.BreakerFailures = c.config.PublishBreakerFailures
	publisherConfig.BreakerTimeout = c.config.PublishBreakerTimeout

	c.publisher, err = publisher.NewOutcomePublisher(b, publisherConfig, c.logger)
	return err
}

// Close releases connections in reverse order of opening.
func (c *CompositionRoot) Close() error {
	var errList []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errList = append(errList, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errList...)
}

func (c *CompositionRoot) uows() commands.UoWFactory {
	return FuncUoWFactory(func() commands.UoW {
		return c.uowFactory.Create()
	})
}

func (c *CompositionRoot) agentUoWs() commands.AgentUoWFactory {
	return FuncAgentUoWFactory(func() commands.AgentUoW {
		return c.uowFactory.Create()
	})
}

func (c *CompositionRoot) CreatePlaceOrderCommandHandler() commands.PlaceOrderCommandHandler {
	return commands.NewPlaceOrderCommandHandler(c.uows(), c.publisher, c.logger)
}

func (c *CompositionRoot) CreateTransitionOrderCommandHandler() commands.TransitionOrderCommandHandler {
	return commands.NewTransitionOrderCommandHandler(c.uows(), c.publisher, c.logger)
}

func (c *CompositionRoot) CreateDispatchOrderCommandHandler() commands.DispatchOrderCommandHandler {
	return commands.NewDispatchOrderCommandHandler(
		c.uows(), c.dispatcher, c.policy, c.admission, c.sequences, c.publisher, c.clock, c.logger,
	)
}

func (c *CompositionRoot) CreateDispatchPendingCommandHandler() commands.DispatchPendingCommandHandler {
	dispatch := c.CreateDispatchOrderCommandHandler()
	return commands.NewDispatchPendingCommandHandler(c.uows(), &dispatch, c.clock, c.logger)
}

func (c *CompositionRoot) CreateRegisterAgentCommandHandler() commands.RegisterAgentCommandHandler {
	return commands.NewRegisterAgentCommandHandler(c.agentUoWs())
}

func (c *CompositionRoot) CreateUpdateAgentLocationCommandHandler() commands.UpdateAgentLocationCommandHandler {
	return commands.NewUpdateAgentLocationCommandHandler(c.agentUoWs())
}

func (c *CompositionRoot) CreateUpdateAgentStatusCommandHandler() commands.UpdateAgentStatusCommandHandler {
	return commands.NewUpdateAgentStatusCommandHandler(c.agentUoWs())
}

func (c *CompositionRoot) CreateMarkStaleAgentsOfflineCommandHandler() commands.MarkStaleAgentsOfflineCommandHandler {
	return commands.NewMarkStaleAgentsOfflineCommandHandler(c.agentUoWs(), c.clock)
}

func (c *CompositionRoot) CreateGetOrderQueryHandler() queries.GetOrderQueryHandler {
	return queries.NewGetOrderQueryHandler(c.uowFactory.Create().OrderRepository())
}

func (c *CompositionRoot) CreateGetAvailableAgentsQueryHandler() queries.GetAvailableAgentsQueryHandler {
	return queries.NewGetAvailableAgentsQueryHandler(
		c.uowFactory.Create().AgentRepository(), c.clock, c.config.AgentLocationTTL,
	)
}

func (c *CompositionRoot) CreateRouter() (*ingress.Router, error) {
	place := c.CreatePlaceOrderCommandHandler()
	transition := c.CreateTransitionOrderCommandHandler()
	dispatch := c.CreateDispatchOrderCommandHandler()
	pending := c.CreateDispatchPendingCommandHandler()
	register := c.CreateRegisterAgentCommandHandler()
	locate := c.CreateUpdateAgentLocationCommandHandler()
	status := c.CreateUpdateAgentStatusCommandHandler()

	return ingress.NewRouter(ingress.Handlers{
		PlaceOrder:          &place,
		Transition:          &transition,
		Dispatch:            &dispatch,
		DispatchPending:     &pending,
		RegisterAgent:       &register,
		UpdateAgentLocation: &locate,
		UpdateAgentStatus:   &status,
	}, c.config.PendingBatch, c.logger)
}

// CreateShardPool returns a pool that routes events through a new router. The
// caller starts and stops it.
func (c *CompositionRoot) CreateShardPool() (*ingress.ShardPool, error) {
	router, err := c.CreateRouter()
	if err != nil {
		return nil, err
	}
	return ingress.NewShardPool(c.config.IngressShards, c.config.IngressQueueSize, router.Route, c.logger)
}

func (c *CompositionRoot) CreateIngress(queue ingress.Queue) (*ingress.Ingress, error) {
	return ingress.NewIngress(c.dedup, c.admission, c.sequences, queue, c.clock, c.logger)
}

func (c *CompositionRoot) CreateHTTPServer(events httpadapter.EventSubmitter) *httpadapter.Server {
	getOrder := c.CreateGetOrderQueryHandler()
	availableAgents := c.CreateGetAvailableAgentsQueryHandler()
	return httpadapter.NewServer(events, getOrder, availableAgents)
}

func (c *CompositionRoot) CreateJobManager() *jobs.JobManager {
	pending := c.CreateDispatchPendingCommandHandler()
	stale := c.CreateMarkStaleAgentsOfflineCommandHandler()

	return jobs.NewJobManager(
		jobs.NewDispatchRetryJob(&pending, c.config.DispatchRetrySchedule, c.config.PendingBatch, c.logger),
		jobs.NewAgentLivenessJob(
			&stale, c.config.AgentLivenessSchedule, c.config.AgentLocationTTL, c.config.LivenessBatch, c.logger,
		),
	)
}

type FuncUoWFactory func() commands.UoW

func (f FuncUoWFactory) Create() commands.UoW {
	return f()
}

type FuncAgentUoWFactory func() commands.AgentUoW

func (f FuncAgentUoWFactory) Create() commands.AgentUoW {
	return f()
}
