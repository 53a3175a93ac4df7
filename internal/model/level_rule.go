package model

import (
	"encoding/json"
	"errors"
	"time"
)

// 审批层级规则类型
const (
	RuleTypeRole       = "role"
	RuleTypeDepartment = "department"
	RuleTypeUsers      = "users"
	RuleTypeRelation   = "relation" // OpenFGA 关系检查
)

// ApprovalLevelRuleModel 看板审批层级规则
type ApprovalLevelRuleModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	BoardID   string    `gorm:"type:varchar(64);not null;index"`
	Level     int       `gorm:"not null"`
	Type      string    `gorm:"type:varchar(16);not null"`
	Values    []byte    `gorm:"column:rule_values;type:jsonb;not null"` // 字符串数组
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (ApprovalLevelRuleModel) TableName() string {
	return "approval_level_rules"
}

// ValueList 解析规则取值
func (m *ApprovalLevelRuleModel) ValueList() ([]string, error) {
	var values []string
	if len(m.Values) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(m.Values, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Validate 验证层级规则
func (m *ApprovalLevelRuleModel) Validate() error {
	if m.BoardID == "" {
		return errors.New("board ID is required")
	}
	if m.Level < 1 {
		return errors.New("level must be >= 1")
	}
	switch m.Type {
	case RuleTypeRole, RuleTypeDepartment, RuleTypeUsers, RuleTypeRelation:
	default:
		return errors.New("invalid rule type")
	}
	return nil
}

// ApprovalBoardSettingModel 看板审批开关
type ApprovalBoardSettingModel struct {
	BoardID                       string    `gorm:"primaryKey;type:varchar(64)"`
	WorkspaceID                   string    `gorm:"type:varchar(64)"` // 看板所属工作区,首次配置时记录
	AllowResubmitAfterReject      bool      `gorm:"not null"`
	AllowSameApproverAcrossLevels bool      `gorm:"not null"`
	UpdatedAt                     time.Time `gorm:"not null"`
}

// TableName 指定表名
func (ApprovalBoardSettingModel) TableName() string {
	return "approval_board_settings"
}
