package model

import (
	"errors"
	"time"
)

// 审批记录状态
const (
	RecordStatusPending  = "pending"
	RecordStatusApproved = "approved"
	RecordStatusRejected = "rejected"
)

// ApprovalRecordModel 审批记录数据模型
// 每条记录对应某个事项在某一轮提交(cycle)中某一层级(level)的一次审批尝试(revision)
type ApprovalRecordModel struct {
	ID               string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ItemID           string     `gorm:"type:varchar(64);not null;index" json:"item_id"`
	WorkspaceID      string     `gorm:"type:varchar(64);not null;index" json:"workspace_id"`
	BoardID          string     `gorm:"type:varchar(64);not null" json:"board_id"`
	Level            int        `gorm:"not null" json:"level"`
	Cycle            int        `gorm:"not null;default:1" json:"cycle"`
	Revision         int        `gorm:"not null;default:1" json:"revision"`
	Status           string     `gorm:"type:varchar(16);not null;index" json:"status"` // pending/approved/rejected
	ApproverID       *string    `gorm:"type:varchar(64);index" json:"approver_id,omitempty"`
	Comments         *string    `gorm:"type:text" json:"comments,omitempty"`
	ChangesRequested bool       `gorm:"not null;default:false" json:"changes_requested"`
	CreatedAt        time.Time  `gorm:"not null;index" json:"created_at"`
	DecidedAt        *time.Time `json:"decided_at,omitempty"`
}

// TableName 指定表名
func (ApprovalRecordModel) TableName() string {
	return "approval_records"
}

// IsPending 是否待审批
func (arm *ApprovalRecordModel) IsPending() bool {
	return arm.Status == RecordStatusPending
}

// Validate 验证审批记录模型
func (arm *ApprovalRecordModel) Validate() error {
	if arm.ID == "" {
		return errors.New("record ID is required")
	}
	if arm.ItemID == "" {
		return errors.New("item ID is required")
	}
	if arm.Level < 1 {
		return errors.New("level must be >= 1")
	}
	if arm.Cycle < 1 || arm.Revision < 1 {
		return errors.New("cycle and revision must be >= 1")
	}
	switch arm.Status {
	case RecordStatusPending, RecordStatusApproved, RecordStatusRejected:
	default:
		return errors.New("invalid record status")
	}
	return nil
}
