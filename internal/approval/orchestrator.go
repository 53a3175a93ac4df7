package approval

import (
	"context"
	"fmt"

	"github.com/mautops/approval-chain/internal/event"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/policy"
	"go.opentelemetry.io/otel/attribute"
)

// isLastLevel 是否为审批链的最后一层,使用提交时快照的层级数
func isLastLevel(record *model.ApprovalRecordModel, item *model.ItemModel, p *policy.LevelPolicy) bool {
	last := item.ApprovalLevelCount
	if last <= 0 {
		last = p.LastLevel()
	}
	return record.Level >= last
}

// Submit 提交事项进入审批,创建第 1 层待审批记录
func (e *Engine) Submit(ctx context.Context, itemID, actorID string) (*model.ApprovalRecordModel, error) {
	ctx, span := e.startSpan(ctx, "Submit",
		attribute.String("item_id", itemID),
		attribute.String("actor_id", actorID),
	)

	var record *model.ApprovalRecordModel
	err := e.retryOnConflict(ctx, "submit", func() error {
		var err error
		record, err = e.submit(ctx, itemID, actorID)
		return err
	})

	endSpan(span, err)
	return record, err
}

func (e *Engine) submit(ctx context.Context, itemID, actorID string) (*model.ApprovalRecordModel, error) {
	item, err := e.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if actorID != item.CreatorID {
		return nil, newError(CodeNotEligible, "only the item creator can submit it for approval")
	}
	p, err := e.resolver.GetApprovalConfig(ctx, item)
	if err != nil {
		return nil, err
	}

	pending, err := e.records.FindPendingByItem(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approval: %w", err)
	}
	if pending != nil {
		return nil, newError(CodeAlreadySubmitted, fmt.Sprintf("item %s already has a pending approval record %s", item.ID, pending.ID))
	}

	switch item.OverallApprovalStatus {
	case model.ItemStatusInReview:
		return nil, newError(CodeAlreadySubmitted, "item "+item.ID+" is already in review")
	case model.ItemStatusApproved:
		return nil, newError(CodeAlreadySubmitted, "item "+item.ID+" is already approved")
	case model.ItemStatusRejected:
		if !p.AllowResubmitAfterReject {
			return nil, newError(CodeAlreadySubmitted, "item "+item.ID+" was rejected and the board does not allow resubmission")
		}
	default:
		latest, err := e.records.FindLatestByItem(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load approval history: %w", err)
		}
		if latest != nil && latest.ChangesRequested && latest.Cycle == item.ApprovalCycle {
			return nil, newError(CodeAlreadySubmitted, "item "+item.ID+" has requested changes, use resubmit")
		}
	}

	now := e.now()
	who := e.lookupActor(ctx, item.WorkspaceID, actorID)
	record := e.newPendingRecord(item, 1, item.ApprovalCycle+1, 1, now)
	approvers := e.approversFor(ctx, 1, item, p)

	err = e.transact(ctx, func(s *scope) error {
		// 快照层级数,之后的策略变更不影响本轮
		item.ApprovalCycle = record.Cycle
		item.ApprovalLevelCount = p.LastLevel()
		if err := s.setItemStatus(ctx, item, model.ItemStatusInReview, record.ID, actorID, now); err != nil {
			return err
		}

		created, err := s.records.CreateIfAbsent(ctx, record)
		if err != nil {
			return fmt.Errorf("failed to create approval record: %w", err)
		}
		if !created {
			return newError(CodeAlreadySubmitted, "item "+item.ID+" already has a pending approval")
		}

		return s.emit(ctx, e.requestedPayload(record, item, who, approvers))
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithField("item_id", item.ID).
		WithField("cycle", record.Cycle).
		WithField("levels", item.ApprovalLevelCount).
		Info("item submitted for approval")
	return record, nil
}

// Resubmit 退回修改后重新提交,在退回的层级创建新的待审批记录
func (e *Engine) Resubmit(ctx context.Context, itemID, actorID string) (*model.ApprovalRecordModel, error) {
	ctx, span := e.startSpan(ctx, "Resubmit",
		attribute.String("item_id", itemID),
		attribute.String("actor_id", actorID),
	)

	var record *model.ApprovalRecordModel
	err := e.retryOnConflict(ctx, "resubmit", func() error {
		var err error
		record, err = e.resubmit(ctx, itemID, actorID)
		return err
	})

	endSpan(span, err)
	return record, err
}

func (e *Engine) resubmit(ctx context.Context, itemID, actorID string) (*model.ApprovalRecordModel, error) {
	item, err := e.loadItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if actorID != item.CreatorID {
		return nil, newError(CodeNotEligible, "only the item creator can resubmit it")
	}
	if item.OverallApprovalStatus != model.ItemStatusDraft {
		return nil, newError(CodeNotEditable, "item "+item.ID+" is "+item.OverallApprovalStatus+", not awaiting changes")
	}

	latest, err := e.records.FindLatestByItem(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval history: %w", err)
	}
	if latest == nil || latest.Status != model.RecordStatusRejected || !latest.ChangesRequested {
		return nil, newError(CodeNotEditable, "no changes were requested for item "+item.ID)
	}

	p, err := e.resolver.GetApprovalConfig(ctx, item)
	if err != nil {
		return nil, err
	}

	now := e.now()
	who := e.lookupActor(ctx, item.WorkspaceID, actorID)
	record := e.newPendingRecord(item, latest.Level, latest.Cycle, latest.Revision+1, now)
	approvers := e.approversFor(ctx, latest.Level, item, p)

	err = e.transact(ctx, func(s *scope) error {
		if err := s.setItemStatus(ctx, item, model.ItemStatusInReview, record.ID, actorID, now); err != nil {
			return err
		}

		created, err := s.records.CreateIfAbsent(ctx, record)
		if err != nil {
			return fmt.Errorf("failed to create approval record: %w", err)
		}
		if !created {
			return newError(CodeNotEditable, "item "+item.ID+" was already resubmitted")
		}

		return s.emit(ctx, e.requestedPayload(record, item, who, approvers))
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithField("item_id", item.ID).
		WithField("level", record.Level).
		WithField("revision", record.Revision).
		Info("item resubmitted for approval")
	return record, nil
}

// onApproved 某层通过后:最后一层则完结事项,否则创建下一层待审批记录
// 下一层记录按 (item, cycle, level, revision) 唯一,重放时插入被忽略,不会产生重复记录或事件
func (e *Engine) onApproved(ctx context.Context, s *scope, record *model.ApprovalRecordModel, item *model.ItemModel, p *policy.LevelPolicy, who actor, nextApprovers []string) (*model.ApprovalRecordModel, error) {
	now := e.now()

	if isLastLevel(record, item, p) {
		if item.OverallApprovalStatus == model.ItemStatusApproved {
			return nil, nil
		}
		if err := s.setItemStatus(ctx, item, model.ItemStatusApproved, record.ID, who.ID, now); err != nil {
			return nil, err
		}
		completed := event.NewPayload(model.EventApprovalCompleted, record, item, who.ID, now)
		completed.ActorName = who.Name
		completed.Recipients = []string{item.CreatorID}
		return nil, s.emit(ctx, completed)
	}

	next := e.newPendingRecord(item, record.Level+1, record.Cycle, 1, now)
	created, err := s.records.CreateIfAbsent(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("failed to create next level record: %w", err)
	}
	if !created {
		return nil, nil
	}
	return next, s.emit(ctx, e.requestedPayload(next, item, who, nextApprovers))
}

// onRejected 拒绝后:退回修改则事项回到草稿,否则事项被拒绝
func (e *Engine) onRejected(ctx context.Context, s *scope, record *model.ApprovalRecordModel, item *model.ItemModel, changesRequested bool, who actor) error {
	status := model.ItemStatusRejected
	if changesRequested {
		status = model.ItemStatusDraft
	}
	return s.setItemStatus(ctx, item, status, record.ID, who.ID, e.now())
}

// Reconcile 对已通过的记录重新执行升级,用于故障后补偿
// 重复执行不会产生重复的下一层记录或完结事件
func (e *Engine) Reconcile(ctx context.Context, recordID string) (*model.ApprovalRecordModel, error) {
	ctx, span := e.startSpan(ctx, "Reconcile", attribute.String("record_id", recordID))

	var next *model.ApprovalRecordModel
	err := e.retryOnConflict(ctx, "reconcile", func() error {
		record, err := e.loadRecord(ctx, recordID)
		if err != nil {
			return err
		}
		if record.Status != model.RecordStatusApproved {
			return newError(CodeValidation, "only approved records can be reconciled")
		}
		item, err := e.loadItem(ctx, record.ItemID)
		if err != nil {
			return err
		}
		if record.Cycle != item.ApprovalCycle {
			return nil
		}
		p, err := e.resolver.GetApprovalConfig(ctx, item)
		if err != nil {
			return err
		}

		who := actor{ID: *record.ApproverID, Name: *record.ApproverID}
		var approvers []string
		if !isLastLevel(record, item, p) {
			approvers = e.approversFor(ctx, record.Level+1, item, p)
		}
		return e.transact(ctx, func(s *scope) error {
			next, err = e.onApproved(ctx, s, record, item, p, who, approvers)
			return err
		})
	})

	endSpan(span, err)
	return next, err
}

// ReconcileAs 以工作区管理员身份执行补偿
func (e *Engine) ReconcileAs(ctx context.Context, recordID, actorID string) (*model.ApprovalRecordModel, error) {
	record, err := e.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	ok, err := e.resolver.IsWorkspaceAdmin(ctx, actorID, record.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check workspace admin: %w", err)
	}
	if !ok {
		return nil, newError(CodeNotEligible, fmt.Sprintf("user %s may not reconcile records of workspace %s", actorID, record.WorkspaceID))
	}
	return e.Reconcile(ctx, recordID)
}

// requestedPayload 新的待审批记录事件,通知该层级的审批人
func (e *Engine) requestedPayload(record *model.ApprovalRecordModel, item *model.ItemModel, who actor, approvers []string) *event.Payload {
	p := event.NewPayload(model.EventApprovalRequested, record, item, who.ID, record.CreatedAt)
	p.ActorName = who.Name
	if approvers == nil {
		approvers = []string{}
	}
	p.Recipients = approvers
	return p
}
