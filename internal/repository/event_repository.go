package repository

import (
	"context"
	"time"

	"github.com/mautops/approval-chain/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository 审批事件(发件箱)仓储接口
type EventRepository interface {
	WithTx(tx *gorm.DB) EventRepository
	Save(ctx context.Context, event *model.ApprovalEventModel) error
	FindByItem(ctx context.Context, itemID string) ([]*model.ApprovalEventModel, error)
	ClaimUnpublished(ctx context.Context, workerID string, limit, maxAttempts int, lockTTL time.Duration, emittedBefore time.Time) ([]*model.ApprovalEventModel, error)
	Claim(ctx context.Context, id, workerID string, lockTTL time.Duration) (bool, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// eventRepository 审批事件仓储实现
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建审批事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *eventRepository) WithTx(tx *gorm.DB) EventRepository {
	return &eventRepository{db: tx}
}

// Save 写入事件
func (r *eventRepository) Save(ctx context.Context, event *model.ApprovalEventModel) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByItem 按写入顺序查找事项的事件
func (r *eventRepository) FindByItem(ctx context.Context, itemID string) ([]*model.ApprovalEventModel, error) {
	var events []*model.ApprovalEventModel
	err := r.db.WithContext(ctx).Where("item_id = ?", itemID).Order("seq ASC").Find(&events).Error
	return events, err
}

// ClaimUnpublished 认领一批未投递的事件
// 认领期间其他实例跳过这些事件,超过 lockTTL 未释放的认领视为失效
func (r *eventRepository) ClaimUnpublished(ctx context.Context, workerID string, limit, maxAttempts int, lockTTL time.Duration, emittedBefore time.Time) ([]*model.ApprovalEventModel, error) {
	now := time.Now()
	staleBefore := now.Add(-lockTTL)

	var claimed []*model.ApprovalEventModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("published_at IS NULL AND attempts < ?", maxAttempts).
			Where("emitted_at <= ?", emittedBefore).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("seq ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]string, 0, len(claimed))
		for _, ev := range claimed {
			ids = append(ids, ev.ID)
		}
		return tx.Model(&model.ApprovalEventModel{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"locked_at": now,
				"locked_by": workerID,
			}).Error
	})
	return claimed, err
}

// Claim 认领单个未投递的事件,事件已发布或被其他实例认领时返回 false
func (r *eventRepository) Claim(ctx context.Context, id, workerID string, lockTTL time.Duration) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.ApprovalEventModel{}).
		Where("id = ? AND published_at IS NULL", id).
		Where("(locked_at IS NULL OR locked_at <= ?)", now.Add(-lockTTL)).
		Updates(map[string]interface{}{
			"locked_at": now,
			"locked_by": workerID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkPublished 标记事件投递成功并释放认领
func (r *eventRepository) MarkPublished(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&model.ApprovalEventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"published_at": time.Now(),
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
			"locked_at":    nil,
			"locked_by":    nil,
		}).Error
}

// MarkFailed 记录一次投递失败并释放认领
func (r *eventRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.db.WithContext(ctx).
		Model(&model.ApprovalEventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
			"locked_at":  nil,
			"locked_by":  nil,
		}).Error
}
