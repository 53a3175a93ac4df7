package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-chain/internal/service"
	"github.com/sirupsen/logrus"
)

// PolicyController 看板审批策略控制器
type PolicyController struct {
	policyService service.PolicyService
	logger        *logrus.Logger
}

// NewPolicyController 创建看板审批策略控制器
func NewPolicyController(policyService service.PolicyService, logger *logrus.Logger) *PolicyController {
	return &PolicyController{
		policyService: policyService,
		logger:        logger,
	}
}

// Get 获取看板审批策略
// @Summary      获取看板审批策略
// @Tags         审批策略
// @Produce      json
// @Param        id path string true "看板 ID"
// @Success      200  {object}  Response
// @Router       /boards/{id}/approval-policy [get]
func (c *PolicyController) Get(ctx *gin.Context) {
	p, err := c.policyService.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, p)
}

// Update 替换看板审批策略
// @Summary      替换看板审批策略
// @Description  只影响之后提交的审批,已提交的审批链使用提交时的层级数;仅工作区管理员可调用
// @Tags         审批策略
// @Accept       json
// @Produce      json
// @Param        id path string true "看板 ID"
// @Param        request body service.UpdatePolicyRequest true "审批策略"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Router       /boards/{id}/approval-policy [put]
func (c *PolicyController) Update(ctx *gin.Context) {
	var req service.UpdatePolicyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, CodeBadRequest, "invalid request", err.Error())
		return
	}

	p, err := c.policyService.Update(ctx.Request.Context(), ctx.Param("id"), &req)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, p)
}
