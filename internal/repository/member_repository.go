package repository

import (
	"context"

	"github.com/mautops/approval-chain/internal/model"
	"gorm.io/gorm"
)

// MemberRepository 工作区成员仓储接口
type MemberRepository interface {
	FindByWorkspace(ctx context.Context, workspaceID string) ([]*model.WorkspaceMemberModel, error)
	FindMember(ctx context.Context, workspaceID, userID string) (*model.WorkspaceMemberModel, error)
	FindWorkspaceIDs(ctx context.Context, userID string) ([]string, error)
}

// memberRepository 工作区成员仓储实现
type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository 创建工作区成员仓储
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

// FindByWorkspace 查找工作区全部成员
func (r *memberRepository) FindByWorkspace(ctx context.Context, workspaceID string) ([]*model.WorkspaceMemberModel, error) {
	var members []*model.WorkspaceMemberModel
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("user_id ASC").
		Find(&members).Error
	return members, err
}

// FindMember 查找工作区中的某个成员,不存在时返回 nil
func (r *memberRepository) FindMember(ctx context.Context, workspaceID, userID string) (*model.WorkspaceMemberModel, error) {
	var members []*model.WorkspaceMemberModel
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Limit(1).
		Find(&members).Error
	if err != nil || len(members) == 0 {
		return nil, err
	}
	return members[0], nil
}

// FindWorkspaceIDs 查找用户所属的工作区
func (r *memberRepository) FindWorkspaceIDs(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).
		Model(&model.WorkspaceMemberModel{}).
		Where("user_id = ?", userID).
		Pluck("workspace_id", &ids).Error
	return ids, err
}
