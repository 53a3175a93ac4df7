package model

import (
	"encoding/json"
	"errors"
	"time"
)

// 审批事件类型
const (
	EventApprovalRequested        = "approval.requested"
	EventApprovalApproved         = "approval.approved"
	EventApprovalRejected         = "approval.rejected"
	EventApprovalChangesRequested = "approval.changes_requested"
	EventApprovalCompleted        = "approval.completed"
)

// ApprovalEventModel 审批事件(发件箱)
// Payload 写入后不再修改,只更新投递相关字段
type ApprovalEventModel struct {
	Seq         uint64          `gorm:"primaryKey;autoIncrement" json:"seq"`
	ID          string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"id"`
	RecordID    string          `gorm:"type:varchar(64);not null;index" json:"record_id"`
	ItemID      string          `gorm:"type:varchar(64);not null;index" json:"item_id"`
	Type        string          `gorm:"type:varchar(64);not null;index" json:"type"`
	Payload     json.RawMessage `gorm:"type:jsonb;not null" json:"payload"`
	EmittedAt   time.Time       `gorm:"not null;index" json:"emitted_at"`
	PublishedAt *time.Time      `gorm:"index" json:"published_at,omitempty"`
	Attempts    int             `gorm:"not null;default:0" json:"attempts"`
	LastError   string          `gorm:"type:text" json:"last_error,omitempty"`
	LockedAt    *time.Time      `json:"-"`
	LockedBy    *string         `gorm:"type:varchar(64)" json:"-"`
}

// TableName 指定表名
func (ApprovalEventModel) TableName() string {
	return "approval_events"
}

// Validate 验证事件模型
func (em *ApprovalEventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.ItemID == "" {
		return errors.New("item ID is required")
	}
	if em.Type == "" {
		return errors.New("event type is required")
	}
	if len(em.Payload) == 0 {
		return errors.New("event payload is required")
	}
	return nil
}
