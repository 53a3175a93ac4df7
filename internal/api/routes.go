package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-chain/internal/config"
	"github.com/mautops/approval-chain/internal/service"
	"github.com/mautops/approval-chain/internal/websocket"
	"github.com/sirupsen/logrus"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config          *config.Config
	Logger          *logrus.Logger
	ApprovalService service.ApprovalService
	QueryService    service.QueryService
	PolicyService   service.PolicyService
	HealthChecks    []HealthCheck
	Hub             *websocket.Hub // 为 nil 时不提供 /ws
	Tracing         *Tracing       // 为 nil 时不启用追踪
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Tracing != nil {
		router.Use(deps.Tracing.Middleware())
	}
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware(logger))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(ErrorHandlerMiddleware(logger))

	healthController := NewHealthController(deps.HealthChecks...)
	router.GET("/health", healthController.Check)
	router.GET("/metrics", MetricsHandler)

	if deps.Hub != nil {
		router.GET("/ws", IdentityMiddleware(), websocket.Handler(deps.Hub, websocket.NewUpgrader(cfg.CORS.AllowedOrigins)))
	}

	approvalController := NewApprovalController(deps.ApprovalService, logger)
	queryController := NewQueryController(deps.QueryService, logger)
	policyController := NewPolicyController(deps.PolicyService, logger)

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	v1.Use(IdentityMiddleware())
	{
		items := v1.Group("/items")
		{
			items.POST("/:id/submit", approvalController.Submit)
			items.POST("/:id/resubmit", approvalController.Resubmit)
			items.GET("/:id/approvals", queryController.ItemApprovals)
			items.GET("/:id/events", queryController.ItemEvents)
			items.GET("/:id/history", queryController.ItemHistory)
		}

		approvals := v1.Group("/approvals")
		{
			approvals.GET("/mine", queryController.ListMine)
			approvals.POST("/:id/decide", approvalController.Decide)
			approvals.POST("/:id/request-changes", approvalController.RequestChanges)
			approvals.POST("/:id/reconcile", approvalController.Reconcile)
		}

		boards := v1.Group("/boards")
		{
			boards.GET("/:id/approval-policy", policyController.Get)
			boards.PUT("/:id/approval-policy", policyController.Update)
		}
	}

	return router
}
