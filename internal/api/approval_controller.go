package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-chain/internal/service"
	"github.com/sirupsen/logrus"
)

// ApprovalController 审批操作控制器
type ApprovalController struct {
	approvalService service.ApprovalService
	logger          *logrus.Logger
}

// NewApprovalController 创建审批操作控制器
func NewApprovalController(approvalService service.ApprovalService, logger *logrus.Logger) *ApprovalController {
	return &ApprovalController{
		approvalService: approvalService,
		logger:          logger,
	}
}

// Submit 提交审批
// @Summary      提交事项审批
// @Description  创建人提交事项,创建第 1 层待审批记录
// @Tags         审批
// @Produce      json
// @Param        id path string true "事项 ID"
// @Param        X-User-ID header string true "操作人"
// @Success      201  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /items/{id}/submit [post]
func (c *ApprovalController) Submit(ctx *gin.Context) {
	record, err := c.approvalService.Submit(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Created(ctx, record)
}

// Resubmit 重新提交
// @Summary      退回修改后重新提交
// @Description  在退回的层级创建新的待审批记录
// @Tags         审批
// @Produce      json
// @Param        id path string true "事项 ID"
// @Param        X-User-ID header string true "操作人"
// @Success      201  {object}  Response
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /items/{id}/resubmit [post]
func (c *ApprovalController) Resubmit(ctx *gin.Context) {
	record, err := c.approvalService.Resubmit(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Created(ctx, record)
}

// Decide 审批决定
// @Summary      审批决定
// @Description  同意或拒绝待审批记录,拒绝时必须填写意见
// @Tags         审批
// @Accept       json
// @Produce      json
// @Param        id path string true "审批记录 ID"
// @Param        X-User-ID header string true "操作人"
// @Param        request body service.DecideRequest true "审批决定"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /approvals/{id}/decide [post]
func (c *ApprovalController) Decide(ctx *gin.Context) {
	var req service.DecideRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, CodeBadRequest, "invalid request", err.Error())
		return
	}

	result, err := c.approvalService.Decide(ctx.Request.Context(), ctx.Param("id"), &req)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, result)
}

// RequestChanges 退回修改
// @Summary      退回修改
// @Description  拒绝当前记录并把事项退回创建人修改
// @Tags         审批
// @Accept       json
// @Produce      json
// @Param        id path string true "审批记录 ID"
// @Param        X-User-ID header string true "操作人"
// @Param        request body service.RequestChangesRequest true "修改意见"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /approvals/{id}/request-changes [post]
func (c *ApprovalController) RequestChanges(ctx *gin.Context) {
	var req service.RequestChangesRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, CodeBadRequest, "invalid request", err.Error())
		return
	}

	result, err := c.approvalService.RequestChanges(ctx.Request.Context(), ctx.Param("id"), &req)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, result)
}

// Reconcile 补偿升级
// @Summary      补偿升级
// @Description  对已通过的记录重新执行升级或完结,重复调用无副作用;仅工作区管理员可调用
// @Tags         审批
// @Produce      json
// @Param        id path string true "审批记录 ID"
// @Param        X-User-ID header string true "操作人"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /approvals/{id}/reconcile [post]
func (c *ApprovalController) Reconcile(ctx *gin.Context) {
	next, err := c.approvalService.Reconcile(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, gin.H{"next_record": next})
}
