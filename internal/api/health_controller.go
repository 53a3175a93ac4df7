package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck 依赖健康检查
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthController 健康检查控制器
type HealthController struct {
	checks  []HealthCheck
	timeout time.Duration
}

// NewHealthController 创建健康检查控制器,只检查已启用的依赖
func NewHealthController(checks ...HealthCheck) *HealthController {
	return &HealthController{
		checks:  checks,
		timeout: 5 * time.Second,
	}
}

// Check 健康检查
// @Summary      健康检查
// @Description  检查数据库、Redis、NATS、OpenFGA 等已启用依赖
// @Tags         系统
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string, len(c.checks))

	for _, hc := range c.checks {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), c.timeout)
		err := hc.Check(checkCtx)
		cancel()
		if err != nil {
			status = "unhealthy"
			checks[hc.Name] = "unhealthy: " + err.Error()
		} else {
			checks[hc.Name] = "healthy"
		}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}
