package repository

import (
	"context"

	"github.com/mautops/approval-chain/internal/model"
	"gorm.io/gorm"
)

// StatusHistoryRepository 事项状态历史仓储接口
type StatusHistoryRepository interface {
	WithTx(tx *gorm.DB) StatusHistoryRepository
	Save(ctx context.Context, history *model.ItemStatusHistoryModel) error
	FindByItem(ctx context.Context, itemID string) ([]*model.ItemStatusHistoryModel, error)
}

// statusHistoryRepository 事项状态历史仓储实现
type statusHistoryRepository struct {
	db *gorm.DB
}

// NewStatusHistoryRepository 创建事项状态历史仓储
func NewStatusHistoryRepository(db *gorm.DB) StatusHistoryRepository {
	return &statusHistoryRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *statusHistoryRepository) WithTx(tx *gorm.DB) StatusHistoryRepository {
	return &statusHistoryRepository{db: tx}
}

// Save 保存状态历史
func (r *statusHistoryRepository) Save(ctx context.Context, history *model.ItemStatusHistoryModel) error {
	if err := history.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(history).Error
}

// FindByItem 查找事项的状态历史
func (r *statusHistoryRepository) FindByItem(ctx context.Context, itemID string) ([]*model.ItemStatusHistoryModel, error) {
	var histories []*model.ItemStatusHistoryModel
	err := r.db.WithContext(ctx).Where("item_id = ?", itemID).Order("created_at ASC").Find(&histories).Error
	return histories, err
}
