package repository_test

import (
	"context"
	"testing"

	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/mautops/approval-chain/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestItemRepository_UpdateApprovalState 测试版本号乐观锁
func TestItemRepository_UpdateApprovalState(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedItem(t, db, "item-1", "ws-1", "board-1", "creator")
	repo := repository.NewItemRepository(db)
	ctx := context.Background()

	first, err := repo.FindByID(ctx, "item-1")
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, "item-1")
	require.NoError(t, err)

	first.OverallApprovalStatus = model.ItemStatusInReview
	first.ApprovalLevelCount = 2
	first.ApprovalCycle = 1
	require.NoError(t, repo.UpdateApprovalState(ctx, first))
	assert.Equal(t, 2, first.Version)

	// 持有旧版本的写入失败
	second.OverallApprovalStatus = model.ItemStatusRejected
	err = repo.UpdateApprovalState(ctx, second)
	assert.ErrorIs(t, err, repository.ErrStaleVersion)

	stored, err := repo.FindByID(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusInReview, stored.OverallApprovalStatus)
	assert.Equal(t, 2, stored.ApprovalLevelCount)
	assert.Equal(t, 2, stored.Version)
}
