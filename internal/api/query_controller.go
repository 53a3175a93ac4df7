package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-chain/internal/service"
	"github.com/sirupsen/logrus"
)

// QueryController 查询控制器
type QueryController struct {
	queryService service.QueryService
	logger       *logrus.Logger
}

// NewQueryController 创建查询控制器
func NewQueryController(queryService service.QueryService, logger *logrus.Logger) *QueryController {
	return &QueryController{
		queryService: queryService,
		logger:       logger,
	}
}

// ListMine 我的审批
// @Summary      我的审批
// @Description  status 为 pending(默认)时返回当前用户可以审批的记录,否则返回其已做出决定的记录
// @Tags         查询
// @Produce      json
// @Param        X-User-ID header string true "操作人"
// @Param        status query string false "状态" Enums(pending, approved, rejected)
// @Param        level query int false "层级"
// @Success      200  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /approvals/mine [get]
func (c *QueryController) ListMine(ctx *gin.Context) {
	var filter service.ApprovalFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		Error(ctx, http.StatusBadRequest, CodeBadRequest, "invalid query parameters", err.Error())
		return
	}

	records, err := c.queryService.PendingApprovalsFor(ctx.Request.Context(), ctx.GetString(UserIDKey), &filter)
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, records)
}

// ItemApprovals 事项审批历史
// @Summary      事项审批历史
// @Description  按轮次、层级、修订排序的全部审批记录
// @Tags         查询
// @Produce      json
// @Param        id path string true "事项 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /items/{id}/approvals [get]
func (c *QueryController) ItemApprovals(ctx *gin.Context) {
	records, err := c.queryService.RecordsForItem(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, records)
}

// ItemEvents 事项事件日志
// @Summary      事项事件日志
// @Description  按写入顺序返回事项的审批事件
// @Tags         查询
// @Produce      json
// @Param        id path string true "事项 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /items/{id}/events [get]
func (c *QueryController) ItemEvents(ctx *gin.Context) {
	events, err := c.queryService.EventsForItem(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, events)
}

// ItemHistory 事项状态历史
// @Summary      事项状态历史
// @Tags         查询
// @Produce      json
// @Param        id path string true "事项 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /items/{id}/history [get]
func (c *QueryController) ItemHistory(ctx *gin.Context) {
	history, err := c.queryService.StatusHistory(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		HandleError(ctx, c.logger, err)
		return
	}
	Success(ctx, history)
}
