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

func pendingIDs(t *testing.T, f *fixture, userID string, filter *service.ApprovalFilter) []string {
	t.Helper()
	records, err := f.queries.PendingApprovalsFor(context.Background(), userID, filter)
	require.NoError(t, err)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

// TestQueryService_RejectScenario 测试第二层拒绝后双方都没有待审批
func TestQueryService_RejectScenario(t *testing.T) {
	f := newFixture(t)

	record, err := f.approvals.Submit(as("carol"), "item-x")
	require.NoError(t, err)
	assert.Equal(t, []string{record.ID}, pendingIDs(t, f, "alice", nil))
	assert.Empty(t, pendingIDs(t, f, "bob", nil))

	result, err := f.approvals.Decide(as("alice"), record.ID, &service.DecideRequest{
		Status:   model.RecordStatusApproved,
		Comments: "looks good",
	})
	require.NoError(t, err)
	level2 := result.NextRecord
	assert.Empty(t, pendingIDs(t, f, "alice", nil))
	assert.Equal(t, []string{level2.ID}, pendingIDs(t, f, "bob", nil))
	assert.Empty(t, pendingIDs(t, f, "bob", &service.ApprovalFilter{Level: intPtr(1)}))

	result, err = f.approvals.Decide(as("bob"), level2.ID, &service.DecideRequest{
		Status:   model.RecordStatusRejected,
		Comments: "wrong amount",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusRejected, result.ItemStatus)

	assert.Empty(t, pendingIDs(t, f, "alice", nil))
	assert.Empty(t, pendingIDs(t, f, "bob", nil))

	decided, err := f.queries.PendingApprovalsFor(context.Background(), "bob", &service.ApprovalFilter{Status: model.RecordStatusRejected})
	require.NoError(t, err)
	require.Len(t, decided, 1)
	assert.Equal(t, level2.ID, decided[0].ID)

	decided, err = f.queries.PendingApprovalsFor(context.Background(), "alice", &service.ApprovalFilter{Status: model.RecordStatusApproved})
	require.NoError(t, err)
	require.Len(t, decided, 1)
	assert.Equal(t, record.ID, decided[0].ID)
}

// TestQueryService_OtherWorkspace 测试其他工作区的成员看不到待审批
func TestQueryService_OtherWorkspace(t *testing.T) {
	f := newFixture(t)

	_, err := f.approvals.Submit(as("carol"), "item-x")
	require.NoError(t, err)

	assert.Empty(t, pendingIDs(t, f, "dave", nil))
	assert.Empty(t, pendingIDs(t, f, "nobody", nil))
}

// TestQueryService_Validation 测试查询参数校验
func TestQueryService_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.queries.PendingApprovalsFor(context.Background(), "alice", &service.ApprovalFilter{Status: "unknown"})
	assert.ErrorIs(t, err, approval.ErrValidation)

	_, err = f.queries.PendingApprovalsFor(context.Background(), "alice", &service.ApprovalFilter{Level: intPtr(0)})
	assert.ErrorIs(t, err, approval.ErrValidation)

	_, err = f.queries.PendingApprovalsFor(context.Background(), "", nil)
	assert.ErrorIs(t, err, approval.ErrValidation)
}

// TestQueryService_ItemHistory 测试事项审批历史、事件与状态历史
func TestQueryService_ItemHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	record, err := f.approvals.Submit(as("carol"), "item-x")
	require.NoError(t, err)
	_, err = f.approvals.Decide(as("alice"), record.ID, &service.DecideRequest{Status: model.RecordStatusApproved})
	require.NoError(t, err)

	records, err := f.queries.RecordsForItem(ctx, "item-x")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Level)
	assert.Equal(t, 2, records[1].Level)

	events, err := f.queries.EventsForItem(ctx, "item-x")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
	assert.Equal(t, model.EventApprovalRequested, events[0].Type)
	assert.Equal(t, model.EventApprovalApproved, events[1].Type)

	history, err := f.queries.StatusHistory(ctx, "item-x")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ItemStatusDraft, history[0].FromStatus)
	assert.Equal(t, model.ItemStatusInReview, history[0].ToStatus)

	_, err = f.queries.RecordsForItem(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
	_, err = f.queries.EventsForItem(ctx, "missing")
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func intPtr(v int) *int {
	return &v
}
