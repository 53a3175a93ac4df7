package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mautops/approval-chain/internal/approval"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/policy"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/sirupsen/logrus"
)

// PolicyService 看板审批策略服务接口
type PolicyService interface {
	Get(ctx context.Context, boardID string) (*policy.LevelPolicy, error)
	Update(ctx context.Context, boardID string, req *UpdatePolicyRequest) (*policy.LevelPolicy, error)
}

// LevelRuleRequest 层级规则
type LevelRuleRequest struct {
	Type   string   `json:"type" example:"role" validate:"required,oneof=role department users relation"`
	Values []string `json:"values" example:"[\"manager\"]" validate:"required,min=1,dive,required"`
}

// UpdatePolicyRequest 更新看板审批策略请求
// @Description 按顺序给出层级规则,第一个为第 1 层;只影响之后提交的审批
type UpdatePolicyRequest struct {
	WorkspaceID                   string             `json:"workspace_id,omitempty" example:"ws-1" validate:"omitempty,max=64"` // 看板尚无事项与设置时必填
	Levels                        []LevelRuleRequest `json:"levels" validate:"max=20,dive"`
	AllowResubmitAfterReject      bool               `json:"allow_resubmit_after_reject"`
	AllowSameApproverAcrossLevels bool               `json:"allow_same_approver_across_levels"`
}

// policyService 看板审批策略服务实现
type policyService struct {
	policies    repository.LevelPolicyRepository
	resolver    *policy.Resolver
	auditLogSvc AuditLogService
	logger      *logrus.Logger
}

// NewPolicyService 创建看板审批策略服务
func NewPolicyService(policies repository.LevelPolicyRepository, resolver *policy.Resolver, auditLogSvc AuditLogService, logger *logrus.Logger) PolicyService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &policyService{
		policies:    policies,
		resolver:    resolver,
		auditLogSvc: auditLogSvc,
		logger:      logger,
	}
}

// Get 获取看板审批策略
func (s *policyService) Get(ctx context.Context, boardID string) (*policy.LevelPolicy, error) {
	return s.resolver.BoardPolicy(ctx, boardID)
}

// Update 替换看板审批层级与开关,仅工作区管理员可操作
func (s *policyService) Update(ctx context.Context, boardID string, req *UpdatePolicyRequest) (*policy.LevelPolicy, error) {
	actorID := UserIDFromContext(ctx)
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	workspaceID, err := s.boardWorkspace(ctx, boardID, req.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(ctx, s.resolver, actorID, workspaceID); err != nil {
		return nil, err
	}

	rules := make([]*model.ApprovalLevelRuleModel, 0, len(req.Levels))
	for i, l := range req.Levels {
		values, err := json.Marshal(l.Values)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rule values: %w", err)
		}
		rules = append(rules, &model.ApprovalLevelRuleModel{
			ID:      uuid.New().String(),
			BoardID: boardID,
			Level:   i + 1,
			Type:    l.Type,
			Values:  values,
		})
	}

	if err := s.policies.ReplaceLevels(ctx, boardID, rules); err != nil {
		return nil, fmt.Errorf("failed to replace approval levels: %w", err)
	}
	if err := s.policies.SaveSettings(ctx, &model.ApprovalBoardSettingModel{
		BoardID:                       boardID,
		WorkspaceID:                   workspaceID,
		AllowResubmitAfterReject:      req.AllowResubmitAfterReject,
		AllowSameApproverAcrossLevels: req.AllowSameApproverAcrossLevels,
	}); err != nil {
		return nil, fmt.Errorf("failed to save board approval settings: %w", err)
	}

	if s.auditLogSvc != nil {
		if err := s.auditLogSvc.RecordAction(ctx, actorID, "update_policy", ResourceBoard, boardID, req); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("failed to record audit log")
		}
	}
	return s.resolver.BoardPolicy(ctx, boardID)
}

// boardWorkspace 确定看板所属工作区,请求中的工作区不能与已知工作区冲突
func (s *policyService) boardWorkspace(ctx context.Context, boardID, requested string) (string, error) {
	known, err := s.policies.BoardWorkspace(ctx, boardID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve board workspace: %w", err)
	}
	switch {
	case known == "" && requested == "":
		return "", &approval.Error{Code: approval.CodeValidation, Message: "workspace_id is required for a board without items"}
	case known == "":
		return requested, nil
	case requested != "" && requested != known:
		return "", &approval.Error{Code: approval.CodeValidation, Message: fmt.Sprintf("board %s belongs to another workspace", boardID)}
	}
	return known, nil
}
