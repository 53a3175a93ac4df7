// Package testutil 测试辅助工具
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mautops/approval-chain/internal/database"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter atomic.Int64

// NewTestDB 创建已迁移的内存 SQLite 数据库
// 单连接,并发测试中的事务按顺序执行
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// SeedItem 写入事项
func SeedItem(t *testing.T, db *gorm.DB, id, workspaceID, boardID, creatorID string) *model.ItemModel {
	t.Helper()
	now := time.Now()
	item := &model.ItemModel{
		ID:                    id,
		WorkspaceID:           workspaceID,
		BoardID:               boardID,
		CreatorID:             creatorID,
		Name:                  "Item " + id,
		BoardName:             "Board " + boardID,
		WorkspaceName:         "Workspace " + workspaceID,
		OverallApprovalStatus: model.ItemStatusDraft,
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

// SeedMember 写入工作区成员
func SeedMember(t *testing.T, db *gorm.DB, workspaceID, userID, role, department string) {
	t.Helper()
	require.NoError(t, db.Create(&model.WorkspaceMemberModel{
		WorkspaceID: workspaceID,
		UserID:      userID,
		DisplayName: "User " + userID,
		Role:        role,
		Department:  department,
		CreatedAt:   time.Now(),
	}).Error)
}

// SeedLevel 写入看板审批层级规则
func SeedLevel(t *testing.T, db *gorm.DB, boardID string, level int, ruleType string, values ...string) {
	t.Helper()
	raw := "[]"
	if len(values) > 0 {
		raw = `["` + values[0]
		for _, v := range values[1:] {
			raw += `","` + v
		}
		raw += `"]`
	}
	now := time.Now()
	require.NoError(t, db.Create(&model.ApprovalLevelRuleModel{
		ID:        fmt.Sprintf("%s-L%d", boardID, level),
		BoardID:   boardID,
		Level:     level,
		Type:      ruleType,
		Values:    []byte(raw),
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)
}

// SeedBoardSettings 写入看板审批开关
func SeedBoardSettings(t *testing.T, db *gorm.DB, boardID string, allowResubmit, allowSameApprover bool) {
	t.Helper()
	require.NoError(t, db.Create(&model.ApprovalBoardSettingModel{
		BoardID:                       boardID,
		AllowResubmitAfterReject:      allowResubmit,
		AllowSameApproverAcrossLevels: allowSameApprover,
		UpdatedAt:                     time.Now(),
	}).Error)
}
