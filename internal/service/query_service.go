package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mautops/approval-chain/internal/approval"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/policy"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// QueryService 审批查询服务接口
type QueryService interface {
	PendingApprovalsFor(ctx context.Context, userID string, filter *ApprovalFilter) ([]*model.ApprovalRecordModel, error)
	RecordsForItem(ctx context.Context, itemID string) ([]*model.ApprovalRecordModel, error)
	EventsForItem(ctx context.Context, itemID string) ([]*model.ApprovalEventModel, error)
	StatusHistory(ctx context.Context, itemID string) ([]*model.ItemStatusHistoryModel, error)
}

// ApprovalFilter 我的审批查询过滤器
type ApprovalFilter struct {
	Status string `form:"status" validate:"omitempty,oneof=pending approved rejected"` // 为空时等同 pending
	Level  *int   `form:"level" validate:"omitempty,min=1"`
}

// queryService 审批查询服务实现
type queryService struct {
	records  repository.ApprovalRecordRepository
	items    repository.ItemRepository
	events   repository.EventRepository
	history  repository.StatusHistoryRepository
	resolver *policy.Resolver
	logger   *logrus.Logger
}

// NewQueryService 创建审批查询服务
func NewQueryService(db *gorm.DB, resolver *policy.Resolver, logger *logrus.Logger) QueryService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &queryService{
		records:  repository.NewApprovalRecordRepository(db),
		items:    repository.NewItemRepository(db),
		events:   repository.NewEventRepository(db),
		history:  repository.NewStatusHistoryRepository(db),
		resolver: resolver,
		logger:   logger,
	}
}

// PendingApprovalsFor 查询用户可以审批的待审批记录
// status 为 approved/rejected 时返回用户已做出决定的记录
func (s *queryService) PendingApprovalsFor(ctx context.Context, userID string, filter *ApprovalFilter) ([]*model.ApprovalRecordModel, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = &ApprovalFilter{}
	}
	if err := validateRequest(filter); err != nil {
		return nil, err
	}

	if filter.Status != "" && filter.Status != model.RecordStatusPending {
		status := filter.Status
		return s.records.FindDecidedBy(ctx, userID, &repository.RecordFilter{
			Level:  filter.Level,
			Status: &status,
		})
	}

	workspaceIDs, err := s.resolver.Directory().WorkspacesOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user workspaces: %w", err)
	}
	if workspaceIDs == nil {
		workspaceIDs = []string{}
	}

	candidates, err := s.records.FindPending(ctx, &repository.RecordFilter{
		WorkspaceIDs: workspaceIDs,
		Level:        filter.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approvals: %w", err)
	}

	policies := make(map[string]*policy.LevelPolicy)
	result := make([]*model.ApprovalRecordModel, 0, len(candidates))
	for _, record := range candidates {
		item, err := s.items.FindByID(ctx, record.ItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.WithField("record_id", record.ID).Warn("pending approval references a missing item")
				continue
			}
			return nil, fmt.Errorf("failed to load item: %w", err)
		}

		p, ok := policies[item.BoardID]
		if !ok {
			p, err = s.resolver.GetApprovalConfig(ctx, item)
			if err != nil {
				return nil, err
			}
			policies[item.BoardID] = p
		}

		eligible, err := s.resolver.IsEligible(ctx, userID, record.Level, item, p)
		if err != nil {
			return nil, fmt.Errorf("failed to check eligibility: %w", err)
		}
		if eligible {
			result = append(result, record)
		}
	}
	return result, nil
}

// RecordsForItem 事项的完整审批历史,按轮次、层级、修订排序
func (s *queryService) RecordsForItem(ctx context.Context, itemID string) ([]*model.ApprovalRecordModel, error) {
	if err := s.ensureItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.records.FindByItem(ctx, itemID)
}

// EventsForItem 事项的审批事件,按写入顺序
func (s *queryService) EventsForItem(ctx context.Context, itemID string) ([]*model.ApprovalEventModel, error) {
	if err := s.ensureItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.events.FindByItem(ctx, itemID)
}

// StatusHistory 事项审批状态变更历史
func (s *queryService) StatusHistory(ctx context.Context, itemID string) ([]*model.ItemStatusHistoryModel, error) {
	if err := s.ensureItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.history.FindByItem(ctx, itemID)
}

func (s *queryService) ensureItem(ctx context.Context, itemID string) error {
	if _, err := s.items.FindByID(ctx, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &approval.Error{Code: approval.CodeNotFound, Message: "item " + itemID + " not found", Err: err}
		}
		return fmt.Errorf("failed to load item: %w", err)
	}
	return nil
}
