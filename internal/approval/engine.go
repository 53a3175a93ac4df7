// Package approval 审批状态机与层级编排
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/approval-chain/internal/event"
	"github.com/mautops/approval-chain/internal/metrics"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/policy"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const tracerName = "github.com/mautops/approval-chain/internal/approval"

// Engine 审批引擎
// submit/decide/requestChanges/resubmit 各自在一个数据库事务中完成,
// 决定、升级或完结、发件箱写入共享同一事务,提交后才发布事件
type Engine struct {
	db        *gorm.DB
	records   repository.ApprovalRecordRepository
	items     repository.ItemRepository
	events    repository.EventRepository
	history   repository.StatusHistoryRepository
	resolver  *policy.Resolver
	publisher event.Publisher
	logger    *logrus.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option 引擎选项
type Option func(*Engine)

// WithClock 指定时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine 创建审批引擎,publisher 为 nil 时事件只写入发件箱
func NewEngine(db *gorm.DB, resolver *policy.Resolver, publisher event.Publisher, logger *logrus.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e := &Engine{
		db:        db,
		records:   repository.NewApprovalRecordRepository(db),
		items:     repository.NewItemRepository(db),
		events:    repository.NewEventRepository(db),
		history:   repository.NewStatusHistoryRepository(db),
		resolver:  resolver,
		publisher: publisher,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// scope 事务内的仓储与待发布事件
type scope struct {
	records repository.ApprovalRecordRepository
	items   repository.ItemRepository
	events  repository.EventRepository
	history repository.StatusHistoryRepository
	emitted []*model.ApprovalEventModel
}

// emit 写入发件箱
func (s *scope) emit(ctx context.Context, p *event.Payload) error {
	ev, err := p.ToModel()
	if err != nil {
		return err
	}
	if err := s.events.Save(ctx, ev); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	s.emitted = append(s.emitted, ev)
	return nil
}

// setItemStatus 更新事项审批状态并记录历史,版本冲突返回 StorageConflict
func (s *scope) setItemStatus(ctx context.Context, item *model.ItemModel, status, recordID, operator string, at time.Time) error {
	from := item.OverallApprovalStatus
	item.OverallApprovalStatus = status
	if err := s.items.UpdateApprovalState(ctx, item); err != nil {
		item.OverallApprovalStatus = from
		if errors.Is(err, repository.ErrStaleVersion) {
			return wrapError(CodeStorageConflict, "item "+item.ID+" was modified concurrently", err)
		}
		return fmt.Errorf("failed to update item approval status: %w", err)
	}
	return s.history.Save(ctx, &model.ItemStatusHistoryModel{
		ID:         uuid.New().String(),
		ItemID:     item.ID,
		FromStatus: from,
		ToStatus:   status,
		RecordID:   recordID,
		Operator:   operator,
		CreatedAt:  at,
	})
}

// transact 在事务中执行 fn,提交成功后发布事件
func (e *Engine) transact(ctx context.Context, fn func(s *scope) error) error {
	var emitted []*model.ApprovalEventModel
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s := &scope{
			records: e.records.WithTx(tx),
			items:   e.items.WithTx(tx),
			events:  e.events.WithTx(tx),
			history: e.history.WithTx(tx),
		}
		if err := fn(s); err != nil {
			return err
		}
		emitted = s.emitted
		return nil
	})
	if err != nil {
		return err
	}

	if e.publisher != nil && len(emitted) > 0 {
		e.publisher.Publish(ctx, emitted)
	}
	return nil
}

// retryOnConflict StorageConflict 时重新读取并重试一次
func (e *Engine) retryOnConflict(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, ErrStorageConflict) {
		return err
	}

	metrics.RecordConflict(true)
	e.logger.WithContext(ctx).WithFields(logrus.Fields{
		"operation": op,
		"error":     err.Error(),
	}).Info("storage conflict, retrying once")

	err = fn()
	if errors.Is(err, ErrStorageConflict) {
		metrics.RecordConflict(false)
	}
	return err
}

// startSpan 开始链路追踪
func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "approval."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(CodeOf(err)))
	}
	span.End()
}

// loadItem 读取事项
func (e *Engine) loadItem(ctx context.Context, itemID string) (*model.ItemModel, error) {
	item, err := e.items.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, wrapError(CodeNotFound, "item "+itemID+" not found", err)
		}
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	return item, nil
}

// loadRecord 读取审批记录
func (e *Engine) loadRecord(ctx context.Context, recordID string) (*model.ApprovalRecordModel, error) {
	record, err := e.records.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, wrapError(CodeNotFound, "approval record "+recordID+" not found", err)
		}
		return nil, fmt.Errorf("failed to load approval record: %w", err)
	}
	return record, nil
}

// actor 操作人
type actor struct {
	ID   string
	Name string
}

// lookupActor 从目录获取操作人显示名,失败时使用用户 ID
func (e *Engine) lookupActor(ctx context.Context, workspaceID, userID string) actor {
	a := actor{ID: userID, Name: userID}
	members, err := e.resolver.Directory().Members(ctx, workspaceID)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("failed to load actor display name")
		return a
	}
	for _, m := range members {
		if m.UserID == userID && m.DisplayName != "" {
			a.Name = m.DisplayName
			break
		}
	}
	return a
}

// approversFor 计算某层级的通知对象,失败时不影响审批
func (e *Engine) approversFor(ctx context.Context, level int, item *model.ItemModel, p *policy.LevelPolicy) []string {
	approvers, err := e.resolver.EligibleApprovers(ctx, level, item, p)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"item_id": item.ID,
			"level":   level,
		}).Warn("failed to resolve approvers for notification")
		return []string{}
	}
	if approvers == nil {
		return []string{}
	}
	return approvers
}

// newPendingRecord 创建待审批记录模型
func (e *Engine) newPendingRecord(item *model.ItemModel, level, cycle, revision int, at time.Time) *model.ApprovalRecordModel {
	return &model.ApprovalRecordModel{
		ID:          uuid.New().String(),
		ItemID:      item.ID,
		WorkspaceID: item.WorkspaceID,
		BoardID:     item.BoardID,
		Level:       level,
		Cycle:       cycle,
		Revision:    revision,
		Status:      model.RecordStatusPending,
		CreatedAt:   at,
	}
}
