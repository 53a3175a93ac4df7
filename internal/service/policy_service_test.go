package service_test

import (
	"context"
	"testing"

	"github.com/mautops/approval-chain/internal/approval"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPolicyService_Update 测试替换看板审批策略
func TestPolicyService_Update(t *testing.T) {
	f := newFixture(t)

	p, err := f.policies.Get(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.LastLevel())

	p, err = f.policies.Update(as("root"), "board-1", &service.UpdatePolicyRequest{
		Levels: []service.LevelRuleRequest{
			{Type: model.RuleTypeUsers, Values: []string{"bob"}},
		},
		AllowResubmitAfterReject:      true,
		AllowSameApproverAcrossLevels: false,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, p.LastLevel())
	assert.Equal(t, model.RuleTypeUsers, p.RuleFor(1).Type)
	assert.Equal(t, []string{"bob"}, p.RuleFor(1).Values)
	assert.True(t, p.AllowResubmitAfterReject)
	assert.False(t, p.AllowSameApproverAcrossLevels)

	// 清空层级后退化为默认角色
	p, err = f.policies.Update(as("root"), "board-1", &service.UpdatePolicyRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, p.LastLevel())
	assert.Equal(t, []string{"admin"}, p.RuleFor(1).Values)

	logs, err := f.audit.ListByResource(context.Background(), service.ResourceBoard, "board-1")
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

// TestPolicyService_UpdateRequiresAdmin 测试非管理员不能修改看板审批策略
func TestPolicyService_UpdateRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	selfApproval := &service.UpdatePolicyRequest{
		Levels: []service.LevelRuleRequest{{Type: model.RuleTypeUsers, Values: []string{"carol"}}},
	}

	for _, user := range []string{"carol", "alice", "dave"} {
		_, err := f.policies.Update(as(user), "board-1", selfApproval)
		assert.ErrorIs(t, err, approval.ErrNotEligible, "user=%s", user)
	}

	// 管理员不能把看板改挂到其他工作区
	req := *selfApproval
	req.WorkspaceID = "ws-2"
	_, err := f.policies.Update(as("root"), "board-1", &req)
	assert.ErrorIs(t, err, approval.ErrValidation)

	p, err := f.policies.Get(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.LastLevel())
	assert.Equal(t, []string{"lead"}, p.RuleFor(1).Values)

	logs, err := f.audit.ListByResource(context.Background(), service.ResourceBoard, "board-1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

// TestPolicyService_NewBoard 测试没有事项的看板需要指明工作区,之后沿用记录的工作区
func TestPolicyService_NewBoard(t *testing.T) {
	f := newFixture(t)
	req := &service.UpdatePolicyRequest{
		Levels: []service.LevelRuleRequest{{Type: model.RuleTypeRole, Values: []string{"lead"}}},
	}

	_, err := f.policies.Update(as("root"), "board-new", req)
	assert.ErrorIs(t, err, approval.ErrValidation)

	// dave 是 ws-2 的 lead,不是管理员
	req.WorkspaceID = "ws-2"
	_, err = f.policies.Update(as("dave"), "board-new", req)
	assert.ErrorIs(t, err, approval.ErrNotEligible)
	_, err = f.policies.Update(as("root"), "board-new", req)
	assert.ErrorIs(t, err, approval.ErrNotEligible)

	req.WorkspaceID = "ws-1"
	_, err = f.policies.Update(as("root"), "board-new", req)
	require.NoError(t, err)

	// 已记录工作区后可省略
	req.WorkspaceID = ""
	p, err := f.policies.Update(as("root"), "board-new", req)
	require.NoError(t, err)
	assert.Equal(t, []string{"lead"}, p.RuleFor(1).Values)

	var settings model.ApprovalBoardSettingModel
	require.NoError(t, f.db.Where("board_id = ?", "board-new").First(&settings).Error)
	assert.Equal(t, "ws-1", settings.WorkspaceID)
}

// TestPolicyService_Validation 测试策略校验
func TestPolicyService_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.policies.Update(as("root"), "board-1", &service.UpdatePolicyRequest{
		Levels: []service.LevelRuleRequest{{Type: "group", Values: []string{"x"}}},
	})
	assert.ErrorIs(t, err, approval.ErrValidation)

	_, err = f.policies.Update(as("root"), "board-1", &service.UpdatePolicyRequest{
		Levels: []service.LevelRuleRequest{{Type: model.RuleTypeRole}},
	})
	assert.ErrorIs(t, err, approval.ErrValidation)

	p, err := f.policies.Get(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.LastLevel())
}
