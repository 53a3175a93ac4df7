// Package container 组装应用依赖
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mautops/approval-chain/internal/api"
	"github.com/mautops/approval-chain/internal/approval"
	"github.com/mautops/approval-chain/internal/auth"
	"github.com/mautops/approval-chain/internal/cache"
	"github.com/mautops/approval-chain/internal/config"
	"github.com/mautops/approval-chain/internal/database"
	"github.com/mautops/approval-chain/internal/event"
	"github.com/mautops/approval-chain/internal/metrics"
	"github.com/mautops/approval-chain/internal/policy"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/mautops/approval-chain/internal/service"
	"github.com/mautops/approval-chain/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// relayLockTTL 分发器与中继共用的事件认领有效期
const relayLockTTL = 30 * time.Second

// Container 依赖注入容器
// 管理数据库、缓存、事件投递、审批引擎与服务
// Redis、NATS、Pub/Sub、OpenFGA 未配置时不启用
type Container struct {
	cfg    *config.Config
	logger *logrus.Logger

	db         *gorm.DB
	redis      *redis.Client
	fgaClient  *auth.OpenFGAClient
	natsSink   *event.NATSSink
	pubsubSink *event.PubSubSink

	hub        *websocket.Hub
	dispatcher *event.Dispatcher
	relay      *event.Relay
	collector  *metrics.Collector

	resolver *policy.Resolver
	engine   *approval.Engine

	approvalSvc service.ApprovalService
	querySvc    service.QueryService
	policySvc   service.PolicyService
}

// NewContainer 创建依赖注入容器
func NewContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	c := &Container{cfg: cfg, logger: logger}
	if err := c.init(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) init(ctx context.Context) error {
	cfg := c.cfg

	// 数据库,重试 3 次,指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	var dirCache cache.Cache = cache.NewMemoryCache()
	var locker *redislock.Client
	if cfg.Redis.Address != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		c.redis = rdb
		dirCache = cache.NewRedisCache(rdb, "approval:")
		locker = redislock.New(rdb)
	}

	var relations auth.RelationChecker
	if cfg.OpenFGA.APIURL != "" {
		fga, err := auth.NewOpenFGAClient(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		c.fgaClient = fga
		relations = auth.NewCachedRelationChecker(fga, dirCache, cfg.Approval.DirectoryCacheTTL)
	}

	sinks, err := c.buildSinks(ctx)
	if err != nil {
		return err
	}

	events := repository.NewEventRepository(db)
	c.dispatcher = event.NewDispatcher(events, sinks, event.DispatcherConfig{
		Workers:   cfg.Events.Workers,
		QueueSize: cfg.Events.QueueSize,
		LockTTL:   relayLockTTL,
	}, c.logger)
	c.relay = event.NewRelay(events, c.dispatcher, locker, event.RelayConfig{
		Interval:    cfg.Events.RelayInterval,
		BatchSize:   cfg.Events.RelayBatch,
		MaxAttempts: cfg.Events.MaxAttempts,
		LockTTL:     relayLockTTL,
	}, c.logger)

	directory := policy.NewMemberDirectory(repository.NewMemberRepository(db), dirCache, cfg.Approval.DirectoryCacheTTL, c.logger)
	c.resolver = policy.NewResolver(repository.NewLevelPolicyRepository(db), directory, relations, DefaultsFromConfig(cfg.Approval))
	c.engine = approval.NewEngine(db, c.resolver, c.dispatcher, c.logger)

	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(db))
	c.approvalSvc = service.NewApprovalService(c.engine, auditLogSvc, c.logger)
	c.querySvc = service.NewQueryService(db, c.resolver, c.logger)
	c.policySvc = service.NewPolicyService(repository.NewLevelPolicyRepository(db), c.resolver, auditLogSvc, c.logger)

	return nil
}

// buildSinks 日志与 WebSocket 始终启用,其余按配置启用
func (c *Container) buildSinks(ctx context.Context) ([]event.Sink, error) {
	cfg := c.cfg
	c.hub = websocket.NewHub(c.logger)
	sinks := []event.Sink{event.NewLogSink(c.logger), c.hub}

	if len(cfg.Events.Webhooks) > 0 {
		sinks = append(sinks, event.NewWebhookSink(cfg.Events.Webhooks))
	}
	if cfg.NATS.URL != "" {
		ns, err := event.NewNATSSink(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		c.natsSink = ns
		sinks = append(sinks, ns)
	}
	if cfg.PubSub.ProjectID != "" {
		ps, err := event.NewPubSubSink(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Pub/Sub: %w", err)
		}
		c.pubsubSink = ps
		sinks = append(sinks, ps)
	}
	return sinks, nil
}

// DefaultsFromConfig 审批默认策略
func DefaultsFromConfig(cfg config.ApprovalConfig) policy.Defaults {
	return policy.Defaults{
		DefaultApproverRole:           cfg.DefaultApproverRole,
		AdminRole:                     cfg.AdminRole,
		AllowResubmitAfterReject:      cfg.AllowResubmitAfterReject,
		AllowSameApproverAcrossLevels: cfg.AllowSameApproverAcrossLevels,
	}
}

// Start 启动后台任务:WebSocket Hub、发件箱中继、指标采集
func (c *Container) Start(ctx context.Context) {
	go c.hub.Run()
	go c.relay.Run(ctx)
	c.collector = metrics.NewCollector(c.db, 30*time.Second, c.logger)
	c.collector.Start()
}

// ApplyConfig 应用热加载的配置
func (c *Container) ApplyConfig(cfg *config.Config) {
	c.resolver.SetDefaults(DefaultsFromConfig(cfg.Approval))
}

// HealthChecks 已启用依赖的健康检查
func (c *Container) HealthChecks() []api.HealthCheck {
	checks := []api.HealthCheck{
		{Name: "database", Check: func(ctx context.Context) error { return database.CheckHealth(ctx, c.db) }},
	}
	if c.redis != nil {
		checks = append(checks, api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return c.redis.Ping(ctx).Err()
		}})
	}
	if c.natsSink != nil {
		checks = append(checks, api.HealthCheck{Name: "nats", Check: c.natsSink.CheckHealth})
	}
	if c.fgaClient != nil {
		checks = append(checks, api.HealthCheck{Name: "openfga", Check: c.fgaClient.CheckHealth})
	}
	return checks
}

// RouterDeps 路由依赖
func (c *Container) RouterDeps(tracing *api.Tracing) api.RouterDeps {
	return api.RouterDeps{
		Config:          c.cfg,
		Logger:          c.logger,
		ApprovalService: c.approvalSvc,
		QueryService:    c.querySvc,
		PolicyService:   c.policySvc,
		HealthChecks:    c.HealthChecks(),
		Hub:             c.hub,
		Tracing:         tracing,
	}
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Engine 审批引擎,供运维命令直接调用
func (c *Container) Engine() *approval.Engine {
	return c.engine
}

// Relay 发件箱中继
func (c *Container) Relay() *event.Relay {
	return c.relay
}

// Close 关闭容器,清理资源
// 先停止投递,再关闭外部连接
func (c *Container) Close() {
	if c.collector != nil {
		c.collector.Stop()
	}
	if c.dispatcher != nil {
		c.dispatcher.Stop()
	}
	if c.hub != nil {
		c.hub.Stop()
	}
	if c.natsSink != nil {
		c.natsSink.Close()
	}
	if c.pubsubSink != nil {
		if err := c.pubsubSink.Close(); err != nil {
			c.logger.WithError(err).Warn("failed to close Pub/Sub client")
		}
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.db != nil {
		if sqlDB, err := c.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
