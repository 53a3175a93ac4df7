package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/mautops/approval-chain/internal/auth"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/repository"
)

const (
	// RelationObjectType relation 规则检查的对象类型
	RelationObjectType = "workspace"
	// AdminRelation 工作区管理员关系
	AdminRelation = "admin"
)

// Resolver 审批层级解析器
type Resolver struct {
	policies  repository.LevelPolicyRepository
	directory Directory
	relations auth.RelationChecker

	mu       sync.RWMutex
	defaults Defaults
}

// NewResolver 创建审批层级解析器,relations 为 nil 时 relation 规则一律不通过
func NewResolver(policies repository.LevelPolicyRepository, directory Directory, relations auth.RelationChecker, defaults Defaults) *Resolver {
	return &Resolver{
		policies:  policies,
		directory: directory,
		relations: relations,
		defaults:  defaults,
	}
}

// SetDefaults 更新默认策略(配置热加载)
func (r *Resolver) SetDefaults(d Defaults) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = d
}

// Defaults 当前默认策略
func (r *Resolver) Defaults() Defaults {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Directory 成员目录
func (r *Resolver) Directory() Directory {
	return r.directory
}

// GetApprovalConfig 获取事项所在看板的审批策略
func (r *Resolver) GetApprovalConfig(ctx context.Context, item *model.ItemModel) (*LevelPolicy, error) {
	return r.BoardPolicy(ctx, item.BoardID)
}

// BoardPolicy 获取看板当前的审批策略
func (r *Resolver) BoardPolicy(ctx context.Context, boardID string) (*LevelPolicy, error) {
	rules, err := r.policies.FindLevels(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval levels: %w", err)
	}
	settings, err := r.policies.FindSettings(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load board approval settings: %w", err)
	}
	return Build(boardID, rules, settings, r.Defaults())
}

// IsEligible 判断用户能否审批事项的某一层级,读取缓存,用于待审批列表
func (r *Resolver) IsEligible(ctx context.Context, userID string, level int, item *model.ItemModel, p *LevelPolicy) (bool, error) {
	rule := p.RuleFor(level)

	if rule.Type == model.RuleTypeRelation {
		return r.checkRelation(ctx, userID, rule.Values, item.WorkspaceID, false)
	}

	approvers, err := r.directory.ListEligibleApprovers(ctx, item.WorkspaceID, rule)
	if err != nil {
		return false, fmt.Errorf("failed to list eligible approvers: %w", err)
	}
	for _, id := range approvers {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// CanDecide 决定时判定资格,成员资料与关系都读取当前值
func (r *Resolver) CanDecide(ctx context.Context, userID string, level int, item *model.ItemModel, p *LevelPolicy) (bool, error) {
	rule := p.RuleFor(level)

	if rule.Type == model.RuleTypeRelation {
		return r.checkRelation(ctx, userID, rule.Values, item.WorkspaceID, true)
	}

	m, err := r.directory.Member(ctx, item.WorkspaceID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load member: %w", err)
	}
	return m != nil && matchesMember(rule, *m), nil
}

// IsWorkspaceAdmin 判断用户能否管理工作区的审批策略
// 成员角色为管理角色,或在 OpenFGA 中对工作区有 admin 关系
func (r *Resolver) IsWorkspaceAdmin(ctx context.Context, userID, workspaceID string) (bool, error) {
	m, err := r.directory.Member(ctx, workspaceID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load member: %w", err)
	}
	if role := r.Defaults().ManagerRole(); m != nil && role != "" && m.Role == role {
		return true, nil
	}
	return r.checkRelation(ctx, userID, []string{AdminRelation}, workspaceID, true)
}

// EligibleApprovers 列出能审批某一层级的用户,用于通知收件人
func (r *Resolver) EligibleApprovers(ctx context.Context, level int, item *model.ItemModel, p *LevelPolicy) ([]string, error) {
	rule := p.RuleFor(level)
	if rule.Type != model.RuleTypeRelation {
		return r.directory.ListEligibleApprovers(ctx, item.WorkspaceID, rule)
	}

	members, err := r.directory.Members(ctx, item.WorkspaceID)
	if err != nil {
		return nil, err
	}
	var userIDs []string
	for _, m := range members {
		ok, err := r.checkRelation(ctx, m.UserID, rule.Values, item.WorkspaceID, false)
		if err != nil {
			return nil, err
		}
		if ok {
			userIDs = append(userIDs, m.UserID)
		}
	}
	return userIDs, nil
}

// checkRelation fresh 为 true 时绕过关系缓存
func (r *Resolver) checkRelation(ctx context.Context, userID string, relations []string, workspaceID string, fresh bool) (bool, error) {
	if r.relations == nil {
		return false, nil
	}
	check := r.relations.CheckRelation
	if f, ok := r.relations.(auth.FreshRelationChecker); ok && fresh {
		check = f.CheckRelationFresh
	}
	for _, relation := range relations {
		ok, err := check(ctx, userID, relation, RelationObjectType, workspaceID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
