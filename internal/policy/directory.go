package policy

import (
	"context"
	"time"

	"github.com/mautops/approval-chain/internal/cache"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/sirupsen/logrus"
)

// Member 工作区成员
type Member struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Department  string `json:"department"`
}

// Directory 成员目录
type Directory interface {
	ListEligibleApprovers(ctx context.Context, workspaceID string, rule Rule) ([]string, error)
	Members(ctx context.Context, workspaceID string) ([]Member, error)
	// Member 直接读取成员当前资料,不经过缓存;不是成员时返回 nil
	Member(ctx context.Context, workspaceID, userID string) (*Member, error)
	WorkspacesOf(ctx context.Context, userID string) ([]string, error)
}

// MemberDirectory 基于 workspace_members 表的目录,带读穿缓存
type MemberDirectory struct {
	members repository.MemberRepository
	cache   cache.Cache
	ttl     time.Duration
	logger  *logrus.Logger
}

// NewMemberDirectory 创建成员目录
func NewMemberDirectory(members repository.MemberRepository, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *MemberDirectory {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MemberDirectory{members: members, cache: c, ttl: ttl, logger: logger}
}

func membersKey(workspaceID string) string {
	return "dir:members:" + workspaceID
}

// Members 获取工作区成员
func (d *MemberDirectory) Members(ctx context.Context, workspaceID string) ([]Member, error) {
	key := membersKey(workspaceID)

	var cached []Member
	if found, err := d.cache.Get(ctx, key, &cached); err != nil {
		d.logger.WithError(err).WithField("workspace_id", workspaceID).Warn("directory cache read failed")
	} else if found {
		return cached, nil
	}

	rows, err := d.members.FindByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	members := make([]Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, toMember(row))
	}

	if err := d.cache.Set(ctx, key, members, d.ttl); err != nil {
		d.logger.WithError(err).WithField("workspace_id", workspaceID).Warn("directory cache write failed")
	}
	return members, nil
}

// Member 读取成员当前资料
// 与缓存中的资料不一致时清除该工作区的缓存,待审批列表与通知随之更新
func (d *MemberDirectory) Member(ctx context.Context, workspaceID, userID string) (*Member, error) {
	row, err := d.members.FindMember(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	var fresh *Member
	if row != nil {
		m := toMember(row)
		fresh = &m
	}

	var cached []Member
	if found, err := d.cache.Get(ctx, membersKey(workspaceID), &cached); err == nil && found && !sameMember(cached, userID, fresh) {
		if err := d.cache.Delete(ctx, membersKey(workspaceID)); err != nil {
			d.logger.WithError(err).WithField("workspace_id", workspaceID).Warn("directory cache invalidation failed")
		}
	}
	return fresh, nil
}

// sameMember 判断缓存列表中的用户资料是否与当前资料一致
func sameMember(cached []Member, userID string, fresh *Member) bool {
	for _, m := range cached {
		if m.UserID == userID {
			return fresh != nil && m == *fresh
		}
	}
	return fresh == nil
}

// WorkspacesOf 获取用户所属的工作区
func (d *MemberDirectory) WorkspacesOf(ctx context.Context, userID string) ([]string, error) {
	key := "dir:user-workspaces:" + userID

	var cached []string
	if found, err := d.cache.Get(ctx, key, &cached); err == nil && found {
		return cached, nil
	}

	ids, err := d.members.FindWorkspaceIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = d.cache.Set(ctx, key, ids, d.ttl)
	return ids, nil
}

// ListEligibleApprovers 列出满足规则的工作区成员
// relation 类型规则无法从目录枚举,返回空列表
func (d *MemberDirectory) ListEligibleApprovers(ctx context.Context, workspaceID string, rule Rule) ([]string, error) {
	members, err := d.Members(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	var userIDs []string
	for _, m := range members {
		if matchesMember(rule, m) {
			userIDs = append(userIDs, m.UserID)
		}
	}
	return userIDs, nil
}

// matchesMember 判断成员是否满足 role/department/users 规则
func matchesMember(rule Rule, m Member) bool {
	var field string
	switch rule.Type {
	case model.RuleTypeRole:
		field = m.Role
	case model.RuleTypeDepartment:
		field = m.Department
	case model.RuleTypeUsers:
		field = m.UserID
	default:
		return false
	}
	for _, v := range rule.Values {
		if v == field {
			return true
		}
	}
	return false
}

func toMember(row *model.WorkspaceMemberModel) Member {
	return Member{
		UserID:      row.UserID,
		DisplayName: row.DisplayName,
		Role:        row.Role,
		Department:  row.Department,
	}
}
