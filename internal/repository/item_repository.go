package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mautops/approval-chain/internal/model"
	"gorm.io/gorm"
)

// ErrStaleVersion 事项版本已变化(乐观锁冲突)
var ErrStaleVersion = errors.New("item version is stale")

// ItemRepository 事项仓储接口
// 审批核心只读写事项的审批字段
type ItemRepository interface {
	WithTx(tx *gorm.DB) ItemRepository
	FindByID(ctx context.Context, id string) (*model.ItemModel, error)
	UpdateApprovalState(ctx context.Context, item *model.ItemModel) error
}

// itemRepository 事项仓储实现
type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository 创建事项仓储
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *itemRepository) WithTx(tx *gorm.DB) ItemRepository {
	return &itemRepository{db: tx}
}

// FindByID 根据 ID 查找事项
func (r *itemRepository) FindByID(ctx context.Context, id string) (*model.ItemModel, error) {
	var item model.ItemModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateApprovalState 以 item.Version 为期望版本写入审批字段
// 版本不匹配返回 ErrStaleVersion,成功后 item.Version 自增
func (r *itemRepository) UpdateApprovalState(ctx context.Context, item *model.ItemModel) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.ItemModel{}).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]interface{}{
			"overall_approval_status": item.OverallApprovalStatus,
			"approval_level_count":    item.ApprovalLevelCount,
			"approval_cycle":          item.ApprovalCycle,
			"version":                 gorm.Expr("version + 1"),
			"updated_at":              now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	item.Version++
	item.UpdatedAt = now
	return nil
}
