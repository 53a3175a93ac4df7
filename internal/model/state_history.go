package model

import (
	"errors"
	"time"
)

// ItemStatusHistoryModel 事项审批状态变更历史
type ItemStatusHistoryModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	ItemID     string    `gorm:"type:varchar(64);not null;index"`
	FromStatus string    `gorm:"type:varchar(16)"`
	ToStatus   string    `gorm:"type:varchar(16);not null"`
	RecordID   string    `gorm:"type:varchar(64)"` // 触发变更的审批记录
	Operator   string    `gorm:"type:varchar(64);not null"`
	CreatedAt  time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (ItemStatusHistoryModel) TableName() string {
	return "item_status_history"
}

// Validate 验证状态历史模型
func (h *ItemStatusHistoryModel) Validate() error {
	if h.ID == "" {
		return errors.New("history ID is required")
	}
	if h.ItemID == "" {
		return errors.New("item ID is required")
	}
	if h.ToStatus == "" {
		return errors.New("to status is required")
	}
	if h.Operator == "" {
		return errors.New("operator is required")
	}
	return nil
}
