package model

import "time"

// WorkspaceMemberModel 工作区成员(目录服务数据)
type WorkspaceMemberModel struct {
	WorkspaceID string    `gorm:"primaryKey;type:varchar(64)"`
	UserID      string    `gorm:"primaryKey;type:varchar(64);index"`
	DisplayName string    `gorm:"type:varchar(255)"`
	Role        string    `gorm:"type:varchar(64);index"`
	Department  string    `gorm:"type:varchar(64)"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName 指定表名
func (WorkspaceMemberModel) TableName() string {
	return "workspace_members"
}
