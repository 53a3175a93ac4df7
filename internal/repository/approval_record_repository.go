package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mautops/approval-chain/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApprovalRecordRepository 审批记录仓储接口
type ApprovalRecordRepository interface {
	WithTx(tx *gorm.DB) ApprovalRecordRepository
	CreateIfAbsent(ctx context.Context, record *model.ApprovalRecordModel) (bool, error)
	FindByID(ctx context.Context, id string) (*model.ApprovalRecordModel, error)
	FindPendingByItem(ctx context.Context, itemID string) (*model.ApprovalRecordModel, error)
	FindLatestByItem(ctx context.Context, itemID string) (*model.ApprovalRecordModel, error)
	FindByItem(ctx context.Context, itemID string) ([]*model.ApprovalRecordModel, error)
	FindByItemCycle(ctx context.Context, itemID string, cycle int) ([]*model.ApprovalRecordModel, error)
	Decide(ctx context.Context, decision *Decision) (bool, error)
	FindPending(ctx context.Context, filter *RecordFilter) ([]*model.ApprovalRecordModel, error)
	FindDecidedBy(ctx context.Context, approverID string, filter *RecordFilter) ([]*model.ApprovalRecordModel, error)
}

// Decision 一次审批决定
type Decision struct {
	RecordID         string
	Status           string // approved/rejected
	ApproverID       string
	Comments         *string
	ChangesRequested bool
	DecidedAt        time.Time
}

// RecordFilter 审批记录查询过滤器
type RecordFilter struct {
	WorkspaceIDs []string
	Level        *int
	Status       *string
}

// approvalRecordRepository 审批记录仓储实现
type approvalRecordRepository struct {
	db *gorm.DB
}

// NewApprovalRecordRepository 创建审批记录仓储
func NewApprovalRecordRepository(db *gorm.DB) ApprovalRecordRepository {
	return &approvalRecordRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *approvalRecordRepository) WithTx(tx *gorm.DB) ApprovalRecordRepository {
	return &approvalRecordRepository{db: tx}
}

// CreateIfAbsent 插入审批记录,违反唯一约束时不插入并返回 false
// 使用 ON CONFLICT DO NOTHING,冲突不会中止外层事务
func (r *approvalRecordRepository) CreateIfAbsent(ctx context.Context, record *model.ApprovalRecordModel) (bool, error) {
	if err := record.Validate(); err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByID 根据 ID 查找审批记录
func (r *approvalRecordRepository) FindByID(ctx context.Context, id string) (*model.ApprovalRecordModel, error) {
	var record model.ApprovalRecordModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindPendingByItem 查找事项当前的待审批记录,没有时返回 nil
func (r *approvalRecordRepository) FindPendingByItem(ctx context.Context, itemID string) (*model.ApprovalRecordModel, error) {
	var records []*model.ApprovalRecordModel
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND status = ?", itemID, model.RecordStatusPending).
		Limit(1).
		Find(&records).Error
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// FindLatestByItem 查找事项最新的一条审批记录,没有时返回 nil
func (r *approvalRecordRepository) FindLatestByItem(ctx context.Context, itemID string) (*model.ApprovalRecordModel, error) {
	var records []*model.ApprovalRecordModel
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("cycle DESC, level DESC, revision DESC").
		Limit(1).
		Find(&records).Error
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// FindByItem 查找事项的全部审批历史
func (r *approvalRecordRepository) FindByItem(ctx context.Context, itemID string) ([]*model.ApprovalRecordModel, error) {
	var records []*model.ApprovalRecordModel
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("cycle ASC, level ASC, revision ASC").
		Find(&records).Error
	return records, err
}

// FindByItemCycle 查找事项某一轮的审批记录
func (r *approvalRecordRepository) FindByItemCycle(ctx context.Context, itemID string, cycle int) ([]*model.ApprovalRecordModel, error) {
	var records []*model.ApprovalRecordModel
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND cycle = ?", itemID, cycle).
		Order("level ASC, revision ASC").
		Find(&records).Error
	return records, err
}

// Decide 条件更新 pending -> approved/rejected
// 返回 false 表示记录已不是 pending(并发决定中的后到者)
func (r *approvalRecordRepository) Decide(ctx context.Context, d *Decision) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.ApprovalRecordModel{}).
		Where("id = ? AND status = ?", d.RecordID, model.RecordStatusPending).
		Updates(map[string]interface{}{
			"status":            d.Status,
			"approver_id":       d.ApproverID,
			"comments":          d.Comments,
			"changes_requested": d.ChangesRequested,
			"decided_at":        d.DecidedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindPending 查找待审批记录
func (r *approvalRecordRepository) FindPending(ctx context.Context, filter *RecordFilter) ([]*model.ApprovalRecordModel, error) {
	var records []*model.ApprovalRecordModel
	query := r.db.WithContext(ctx).
		Model(&model.ApprovalRecordModel{}).
		Where("status = ?", model.RecordStatusPending)

	if filter != nil {
		if filter.WorkspaceIDs != nil {
			if len(filter.WorkspaceIDs) == 0 {
				return records, nil
			}
			query = query.Where("workspace_id IN ?", filter.WorkspaceIDs)
		}
		if filter.Level != nil {
			query = query.Where("level = ?", *filter.Level)
		}
	}

	err := query.Order("created_at ASC").Find(&records).Error
	return records, err
}

// FindDecidedBy 查找某审批人已做出决定的记录
func (r *approvalRecordRepository) FindDecidedBy(ctx context.Context, approverID string, filter *RecordFilter) ([]*model.ApprovalRecordModel, error) {
	var records []*model.ApprovalRecordModel
	query := r.db.WithContext(ctx).
		Model(&model.ApprovalRecordModel{}).
		Where("approver_id = ?", approverID)

	if filter != nil {
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		if filter.Level != nil {
			query = query.Where("level = ?", *filter.Level)
		}
	}

	err := query.Order("decided_at DESC").Find(&records).Error
	return records, err
}
