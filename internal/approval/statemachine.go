package approval

import (
	"context"
	"fmt"
	"strings"

	"github.com/mautops/approval-chain/internal/event"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/policy"
	"github.com/mautops/approval-chain/internal/repository"
	"go.opentelemetry.io/otel/attribute"
)

// Decide 审批人对待审批记录做出决定
// 拒绝必须填写意见;记录已不是 pending 时返回 AlreadyDecided
func (e *Engine) Decide(ctx context.Context, recordID, actorID string, outcome Outcome, comment string) (*DecisionResult, error) {
	ctx, span := e.startSpan(ctx, "Decide",
		attribute.String("record_id", recordID),
		attribute.String("actor_id", actorID),
		attribute.String("outcome", string(outcome)),
	)

	var result *DecisionResult
	err := func() error {
		if !outcome.Valid() {
			return newError(CodeValidation, fmt.Sprintf("invalid outcome %q, expected approved or rejected", outcome))
		}
		comments, err := normalizeComment(comment, outcome == OutcomeRejected)
		if err != nil {
			return err
		}
		return e.retryOnConflict(ctx, "decide", func() error {
			result, err = e.decide(ctx, recordID, actorID, outcome, comments, false)
			return err
		})
	}()

	endSpan(span, err)
	return result, err
}

// RequestChanges 退回修改:拒绝当前记录并标记 changes_requested,事项回到草稿
func (e *Engine) RequestChanges(ctx context.Context, recordID, actorID, comment string) (*DecisionResult, error) {
	ctx, span := e.startSpan(ctx, "RequestChanges",
		attribute.String("record_id", recordID),
		attribute.String("actor_id", actorID),
	)

	var result *DecisionResult
	err := func() error {
		comments, err := normalizeComment(comment, true)
		if err != nil {
			return err
		}
		return e.retryOnConflict(ctx, "request_changes", func() error {
			result, err = e.decide(ctx, recordID, actorID, OutcomeRejected, comments, true)
			return err
		})
	}()

	endSpan(span, err)
	return result, err
}

// normalizeComment 去除首尾空白,required 时不能为空
func normalizeComment(comment string, required bool) (*string, error) {
	trimmed := strings.TrimSpace(comment)
	if trimmed == "" {
		if required {
			return nil, newError(CodeValidation, "a comment is required to reject or request changes")
		}
		return nil, nil
	}
	return &trimmed, nil
}

func (e *Engine) decide(ctx context.Context, recordID, actorID string, outcome Outcome, comments *string, changesRequested bool) (*DecisionResult, error) {
	record, err := e.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !record.IsPending() {
		return nil, newError(CodeAlreadyDecided, fmt.Sprintf("approval record %s is already %s", record.ID, record.Status))
	}

	item, err := e.loadItem(ctx, record.ItemID)
	if err != nil {
		return nil, err
	}
	p, err := e.resolver.GetApprovalConfig(ctx, item)
	if err != nil {
		return nil, err
	}
	if err := e.checkEligible(ctx, actorID, record, item, p); err != nil {
		return nil, err
	}

	now := e.now()
	who := e.lookupActor(ctx, item.WorkspaceID, actorID)

	decided := *record
	decided.Status = string(outcome)
	decided.ApproverID = &actorID
	decided.Comments = comments
	decided.ChangesRequested = changesRequested
	decided.DecidedAt = &now

	eventType := model.EventApprovalApproved
	switch {
	case changesRequested:
		eventType = model.EventApprovalChangesRequested
	case outcome == OutcomeRejected:
		eventType = model.EventApprovalRejected
	}
	decisionEvent := event.NewPayload(eventType, &decided, item, who.ID, now)
	decisionEvent.ActorName = who.Name
	decisionEvent.Recipients = []string{item.CreatorID}

	// 目录查询在事务外完成
	final := outcome == OutcomeApproved && isLastLevel(record, item, p)
	var nextApprovers []string
	if outcome == OutcomeApproved && !final {
		nextApprovers = e.approversFor(ctx, record.Level+1, item, p)
	}

	result := &DecisionResult{
		Record:           &decided,
		Final:            final,
		ChangesRequested: changesRequested,
	}
	err = e.transact(ctx, func(s *scope) error {
		ok, err := s.records.Decide(ctx, &repository.Decision{
			RecordID:         record.ID,
			Status:           decided.Status,
			ApproverID:       actorID,
			Comments:         comments,
			ChangesRequested: changesRequested,
			DecidedAt:        now,
		})
		if err != nil {
			return fmt.Errorf("failed to record decision: %w", err)
		}
		if !ok {
			// 并发决定中的后到者
			return newError(CodeAlreadyDecided, fmt.Sprintf("approval record %s was decided concurrently", record.ID))
		}
		if err := s.emit(ctx, decisionEvent); err != nil {
			return err
		}

		if outcome == OutcomeApproved {
			next, err := e.onApproved(ctx, s, &decided, item, p, who, nextApprovers)
			if err != nil {
				return err
			}
			result.NextRecord = next
		} else if err := e.onRejected(ctx, s, &decided, item, changesRequested, who); err != nil {
			return err
		}
		result.ItemStatus = item.OverallApprovalStatus
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithField("record_id", record.ID).
		WithField("item_id", item.ID).
		WithField("level", record.Level).
		WithField("status", decided.Status).
		WithField("changes_requested", changesRequested).
		Info("approval decided")
	return result, nil
}

// checkEligible 决定时判定资格,不使用目录缓存
// 看板禁止同一人跨层级审批时,已审批过本轮更早层级的人不能再审批
func (e *Engine) checkEligible(ctx context.Context, actorID string, record *model.ApprovalRecordModel, item *model.ItemModel, p *policy.LevelPolicy) error {
	ok, err := e.resolver.CanDecide(ctx, actorID, record.Level, item, p)
	if err != nil {
		return fmt.Errorf("failed to check eligibility: %w", err)
	}
	if !ok {
		return newError(CodeNotEligible, fmt.Sprintf("user %s is not eligible to decide level %d", actorID, record.Level))
	}

	if p.AllowSameApproverAcrossLevels {
		return nil
	}
	cycleRecords, err := e.records.FindByItemCycle(ctx, record.ItemID, record.Cycle)
	if err != nil {
		return fmt.Errorf("failed to load approval history: %w", err)
	}
	for _, r := range cycleRecords {
		if r.Level < record.Level && r.ApproverID != nil && *r.ApproverID == actorID {
			return newError(CodeNotEligible, fmt.Sprintf("user %s already decided level %d of this item", actorID, r.Level))
		}
	}
	return nil
}
