package repository

import (
	"context"
	"time"

	"github.com/mautops/approval-chain/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LevelPolicyRepository 看板审批策略仓储接口
type LevelPolicyRepository interface {
	FindLevels(ctx context.Context, boardID string) ([]*model.ApprovalLevelRuleModel, error)
	FindSettings(ctx context.Context, boardID string) (*model.ApprovalBoardSettingModel, error)
	ReplaceLevels(ctx context.Context, boardID string, rules []*model.ApprovalLevelRuleModel) error
	SaveSettings(ctx context.Context, settings *model.ApprovalBoardSettingModel) error
	BoardWorkspace(ctx context.Context, boardID string) (string, error)
}

// levelPolicyRepository 看板审批策略仓储实现
type levelPolicyRepository struct {
	db *gorm.DB
}

// NewLevelPolicyRepository 创建看板审批策略仓储
func NewLevelPolicyRepository(db *gorm.DB) LevelPolicyRepository {
	return &levelPolicyRepository{db: db}
}

// FindLevels 按层级顺序查找看板的审批规则
func (r *levelPolicyRepository) FindLevels(ctx context.Context, boardID string) ([]*model.ApprovalLevelRuleModel, error) {
	var rules []*model.ApprovalLevelRuleModel
	err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("level ASC").
		Find(&rules).Error
	return rules, err
}

// FindSettings 查找看板审批开关,未配置时返回 nil
func (r *levelPolicyRepository) FindSettings(ctx context.Context, boardID string) (*model.ApprovalBoardSettingModel, error) {
	var settings []*model.ApprovalBoardSettingModel
	err := r.db.WithContext(ctx).Where("board_id = ?", boardID).Limit(1).Find(&settings).Error
	if err != nil || len(settings) == 0 {
		return nil, err
	}
	return settings[0], nil
}

// ReplaceLevels 整体替换看板的审批层级
// 已提交的审批链使用提交时快照的层级数,不受影响
func (r *levelPolicyRepository) ReplaceLevels(ctx context.Context, boardID string, rules []*model.ApprovalLevelRuleModel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("board_id = ?", boardID).Delete(&model.ApprovalLevelRuleModel{}).Error; err != nil {
			return err
		}
		now := time.Now()
		for _, rule := range rules {
			rule.BoardID = boardID
			rule.CreatedAt = now
			rule.UpdatedAt = now
			if err := rule.Validate(); err != nil {
				return err
			}
			if err := tx.Create(rule).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveSettings 保存看板审批开关
func (r *levelPolicyRepository) SaveSettings(ctx context.Context, settings *model.ApprovalBoardSettingModel) error {
	settings.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "board_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"workspace_id", "allow_resubmit_after_reject", "allow_same_approver_across_levels", "updated_at"}),
		}).
		Create(settings).Error
}

// BoardWorkspace 查找看板所属工作区
// 优先使用看板设置中记录的工作区,其次使用看板上任一事项的工作区;都没有时返回空字符串
func (r *levelPolicyRepository) BoardWorkspace(ctx context.Context, boardID string) (string, error) {
	settings, err := r.FindSettings(ctx, boardID)
	if err != nil {
		return "", err
	}
	if settings != nil && settings.WorkspaceID != "" {
		return settings.WorkspaceID, nil
	}

	var ids []string
	err = r.db.WithContext(ctx).
		Model(&model.ItemModel{}).
		Where("board_id = ?", boardID).
		Limit(1).
		Pluck("workspace_id", &ids).Error
	if err != nil || len(ids) == 0 {
		return "", err
	}
	return ids[0], nil
}
