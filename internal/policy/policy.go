// Package policy 解析看板的审批层级配置并判定审批资格
package policy

import (
	"github.com/mautops/approval-chain/internal/model"
)

// Rule 某一层级的审批资格规则
type Rule struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

// Level 有序的审批层级
type Level struct {
	Ordinal int  `json:"level"`
	Rule    Rule `json:"rule"`
}

// LevelPolicy 看板审批策略
type LevelPolicy struct {
	BoardID                       string  `json:"board_id"`
	Levels                        []Level `json:"levels"`
	DefaultRule                   Rule    `json:"default_rule"`
	AllowResubmitAfterReject      bool    `json:"allow_resubmit_after_reject"`
	AllowSameApproverAcrossLevels bool    `json:"allow_same_approver_across_levels"`
}

// LastLevel 最后一个层级的序号
func (p *LevelPolicy) LastLevel() int {
	return len(p.Levels)
}

// RuleFor 获取层级规则,超出当前配置的层级使用默认规则
func (p *LevelPolicy) RuleFor(level int) Rule {
	if level >= 1 && level <= len(p.Levels) {
		return p.Levels[level-1].Rule
	}
	return p.DefaultRule
}

// Defaults 看板未配置时使用的默认策略
type Defaults struct {
	DefaultApproverRole           string
	AdminRole                     string // 可管理审批策略的角色,为空时使用 DefaultApproverRole
	AllowResubmitAfterReject      bool
	AllowSameApproverAcrossLevels bool
}

// DefaultRule 默认规则:需要默认审批角色
func (d Defaults) DefaultRule() Rule {
	return Rule{Type: model.RuleTypeRole, Values: []string{d.DefaultApproverRole}}
}

// ManagerRole 可管理审批策略与执行补偿的角色
func (d Defaults) ManagerRole() string {
	if d.AdminRole != "" {
		return d.AdminRole
	}
	return d.DefaultApproverRole
}

// Build 根据看板配置构建审批策略
// 层级按 level 排序后重新编号为 1..N;没有配置时退化为一个默认层级
func Build(boardID string, rules []*model.ApprovalLevelRuleModel, settings *model.ApprovalBoardSettingModel, defaults Defaults) (*LevelPolicy, error) {
	p := &LevelPolicy{
		BoardID:                       boardID,
		DefaultRule:                   defaults.DefaultRule(),
		AllowResubmitAfterReject:      defaults.AllowResubmitAfterReject,
		AllowSameApproverAcrossLevels: defaults.AllowSameApproverAcrossLevels,
	}
	if settings != nil {
		p.AllowResubmitAfterReject = settings.AllowResubmitAfterReject
		p.AllowSameApproverAcrossLevels = settings.AllowSameApproverAcrossLevels
	}

	for _, r := range rules {
		values, err := r.ValueList()
		if err != nil {
			return nil, err
		}
		p.Levels = append(p.Levels, Level{
			Ordinal: len(p.Levels) + 1,
			Rule:    Rule{Type: r.Type, Values: values},
		})
	}

	if len(p.Levels) == 0 {
		p.Levels = []Level{{Ordinal: 1, Rule: p.DefaultRule}}
	}
	return p, nil
}
