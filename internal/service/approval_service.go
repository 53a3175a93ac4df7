package service

import (
	"context"

	"github.com/mautops/approval-chain/internal/approval"
	"github.com/mautops/approval-chain/internal/metrics"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/sirupsen/logrus"
)

// ApprovalService 审批操作服务接口
type ApprovalService interface {
	Submit(ctx context.Context, itemID string) (*model.ApprovalRecordModel, error)
	Resubmit(ctx context.Context, itemID string) (*model.ApprovalRecordModel, error)
	Decide(ctx context.Context, recordID string, req *DecideRequest) (*approval.DecisionResult, error)
	RequestChanges(ctx context.Context, recordID string, req *RequestChangesRequest) (*approval.DecisionResult, error)
	Reconcile(ctx context.Context, recordID string) (*model.ApprovalRecordModel, error)
}

// DecideRequest 审批决定请求
// @Description 审批人对待审批记录做出决定
type DecideRequest struct {
	Status   string `json:"status" example:"approved" validate:"required,oneof=approved rejected"` // approved 或 rejected
	Comments string `json:"comments" example:"looks good" validate:"max=2000"`                     // 拒绝时必填
}

// RequestChangesRequest 退回修改请求
// @Description 退回事项给创建人修改
type RequestChangesRequest struct {
	Comments string `json:"comments" example:"please fix the amount" validate:"required,max=2000"` // 修改意见
}

// approvalService 审批操作服务实现
type approvalService struct {
	engine      *approval.Engine
	auditLogSvc AuditLogService
	logger      *logrus.Logger
}

// NewApprovalService 创建审批操作服务
func NewApprovalService(engine *approval.Engine, auditLogSvc AuditLogService, logger *logrus.Logger) ApprovalService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &approvalService{
		engine:      engine,
		auditLogSvc: auditLogSvc,
		logger:      logger,
	}
}

// Submit 提交事项审批
func (s *approvalService) Submit(ctx context.Context, itemID string) (*model.ApprovalRecordModel, error) {
	actorID := UserIDFromContext(ctx)
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	record, err := s.engine.Submit(ctx, itemID, actorID)
	s.observe("submit", err)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actorID, "submit", ResourceItem, itemID, map[string]interface{}{
		"record_id": record.ID,
		"cycle":     record.Cycle,
	})
	return record, nil
}

// Resubmit 退回修改后重新提交
func (s *approvalService) Resubmit(ctx context.Context, itemID string) (*model.ApprovalRecordModel, error) {
	actorID := UserIDFromContext(ctx)
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	record, err := s.engine.Resubmit(ctx, itemID, actorID)
	s.observe("resubmit", err)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actorID, "resubmit", ResourceItem, itemID, map[string]interface{}{
		"record_id": record.ID,
		"level":     record.Level,
		"revision":  record.Revision,
	})
	return record, nil
}

// Decide 审批决定
func (s *approvalService) Decide(ctx context.Context, recordID string, req *DecideRequest) (*approval.DecisionResult, error) {
	actorID := UserIDFromContext(ctx)
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	action := "approve"
	if req.Status == model.RecordStatusRejected {
		action = "reject"
	}

	result, err := s.engine.Decide(ctx, recordID, actorID, approval.Outcome(req.Status), req.Comments)
	s.observe(action, err)
	if err != nil {
		return nil, err
	}
	s.observeResult(result)

	s.audit(ctx, actorID, action, ResourceApprovalRecord, recordID, map[string]interface{}{
		"item_id":  result.Record.ItemID,
		"level":    result.Record.Level,
		"comments": req.Comments,
		"final":    result.Final,
	})
	return result, nil
}

// RequestChanges 退回修改
func (s *approvalService) RequestChanges(ctx context.Context, recordID string, req *RequestChangesRequest) (*approval.DecisionResult, error) {
	actorID := UserIDFromContext(ctx)
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	result, err := s.engine.RequestChanges(ctx, recordID, actorID, req.Comments)
	s.observe("request_changes", err)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actorID, "request_changes", ResourceApprovalRecord, recordID, map[string]interface{}{
		"item_id":  result.Record.ItemID,
		"level":    result.Record.Level,
		"comments": req.Comments,
	})
	return result, nil
}

// Reconcile 重新执行已通过记录的升级,仅工作区管理员可操作
func (s *approvalService) Reconcile(ctx context.Context, recordID string) (*model.ApprovalRecordModel, error) {
	actorID := UserIDFromContext(ctx)
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	next, err := s.engine.ReconcileAs(ctx, recordID, actorID)
	s.observe("reconcile", err)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, "reconcile", ResourceApprovalRecord, recordID, map[string]interface{}{
		"escalated": next != nil,
	})
	if next != nil {
		metrics.RecordEscalation()
		s.logger.WithField("record_id", recordID).WithField("next_record_id", next.ID).Info("escalation reconciled")
	}
	return next, nil
}

// observe 记录操作结果指标,结果标签为错误码
func (s *approvalService) observe(action string, err error) {
	result := "success"
	if err != nil {
		result = string(approval.CodeOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.RecordApprovalAction(action, result)
}

func (s *approvalService) observeResult(result *approval.DecisionResult) {
	if result.NextRecord != nil {
		metrics.RecordEscalation()
	}
	if result.Final {
		metrics.RecordCompletion()
	}
}

// audit 审计日志失败不影响审批结果
func (s *approvalService) audit(ctx context.Context, userID, action, resourceType, resourceID string, details interface{}) {
	if s.auditLogSvc == nil {
		return
	}
	if err := s.auditLogSvc.RecordAction(ctx, userID, action, resourceType, resourceID, details); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"action":      action,
			"resource_id": resourceID,
		}).Warn("failed to record audit log")
	}
}
