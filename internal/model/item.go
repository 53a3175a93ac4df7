package model

import (
	"errors"
	"time"
)

// 事项整体审批状态
const (
	ItemStatusDraft    = "draft"
	ItemStatusInReview = "in_review"
	ItemStatusApproved = "approved"
	ItemStatusRejected = "rejected"
)

// ItemModel 事项数据模型
// 事项本身由看板服务维护,审批核心只读写审批相关字段
type ItemModel struct {
	ID                    string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	WorkspaceID           string    `gorm:"type:varchar(64);not null;index" json:"workspace_id"`
	BoardID               string    `gorm:"type:varchar(64);not null;index" json:"board_id"`
	CreatorID             string    `gorm:"type:varchar(64);not null;index" json:"creator_id"`
	Name                  string    `gorm:"type:varchar(255)" json:"name"`
	BoardName             string    `gorm:"type:varchar(255)" json:"board_name"`
	WorkspaceName         string    `gorm:"type:varchar(255)" json:"workspace_name"`
	OverallApprovalStatus string    `gorm:"type:varchar(16);not null;default:'draft'" json:"overall_approval_status"`
	ApprovalLevelCount    int       `gorm:"not null;default:0" json:"approval_level_count"` // 提交时快照
	ApprovalCycle         int       `gorm:"not null;default:0" json:"approval_cycle"`
	Version               int       `gorm:"not null;default:1" json:"version"`
	CreatedAt             time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (ItemModel) TableName() string {
	return "items"
}

// Validate 验证事项模型
func (im *ItemModel) Validate() error {
	if im.ID == "" {
		return errors.New("item ID is required")
	}
	if im.WorkspaceID == "" {
		return errors.New("workspace ID is required")
	}
	if im.BoardID == "" {
		return errors.New("board ID is required")
	}
	if im.CreatorID == "" {
		return errors.New("creator ID is required")
	}
	return nil
}
