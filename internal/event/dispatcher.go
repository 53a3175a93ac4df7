package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/approval-chain/internal/metrics"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/sirupsen/logrus"
)

// Publisher 事务提交后接收事件
// 实现不得阻塞调用方,投递失败不影响审批操作
type Publisher interface {
	Publish(ctx context.Context, events []*model.ApprovalEventModel)
}

// Sink 事件投递目标
type Sink interface {
	Name() string
	Deliver(ctx context.Context, payload *Payload) error
}

// DispatcherConfig 分发器配置
type DispatcherConfig struct {
	Workers      int
	QueueSize    int
	Retries      int           // 单次投递内的重试次数
	RetryBackoff time.Duration // 初始退避时间
	LockTTL      time.Duration // 队列投递的认领有效期
}

// Dispatcher 事件分发器
// 事件已在审批事务中写入发件箱,分发器只负责投递并记录结果
type Dispatcher struct {
	events repository.EventRepository
	sinks  []Sink
	logger *logrus.Logger
	cfg    DispatcherConfig

	workerID string
	queue    chan *model.ApprovalEventModel
	stop     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewDispatcher 创建事件分发器并启动 worker
func NewDispatcher(events repository.EventRepository, sinks []Sink, cfg DispatcherConfig, logger *logrus.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}

	d := &Dispatcher{
		events: events,
		sinks:  sinks,
		logger: logger,
		cfg:    cfg,

		workerID: "dispatcher-" + uuid.New().String()[:8],
		queue:    make(chan *model.ApprovalEventModel, cfg.QueueSize),
		stop:     make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Publish 事件入队,队列满时丢弃,由中继补投
func (d *Dispatcher) Publish(_ context.Context, events []*model.ApprovalEventModel) {
	for _, ev := range events {
		select {
		case d.queue <- ev:
		default:
			d.logger.WithFields(logrus.Fields{
				"event_id": ev.ID,
				"type":     ev.Type,
				"item_id":  ev.ItemID,
			}).Warn("event queue full, leaving event to relay")
		}
	}
	metrics.SetEventQueueDepth(len(d.queue))
}

// worker 事件处理 worker
func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliverQueued(context.Background(), ev)
		case <-d.stop:
			return
		}
	}
}

// deliverQueued 认领后投递队列中的事件,已被中继认领或已发布的事件跳过
func (d *Dispatcher) deliverQueued(ctx context.Context, ev *model.ApprovalEventModel) bool {
	claimed, err := d.events.Claim(ctx, ev.ID, d.workerID, d.cfg.LockTTL)
	if err != nil {
		d.logger.WithError(err).WithField("event_id", ev.ID).Warn("failed to claim event, leaving it to relay")
		return false
	}
	if !claimed {
		d.logger.WithField("event_id", ev.ID).Debug("event already claimed or published")
		return false
	}
	return d.Deliver(ctx, ev)
}

// Deliver 投递单个已认领的事件到所有目标并记录结果
// 返回 true 表示全部投递成功
func (d *Dispatcher) Deliver(ctx context.Context, ev *model.ApprovalEventModel) bool {
	payload, err := DecodePayload(ev)
	if err != nil {
		d.logger.WithError(err).WithField("event_id", ev.ID).Error("failed to decode event payload")
		_ = d.events.MarkFailed(ctx, ev.ID, err.Error())
		return false
	}

	backoff := d.cfg.RetryBackoff
	var deliverErr error
retry:
	for i := 0; i < d.cfg.Retries; i++ {
		deliverErr = d.deliverAll(ctx, payload)
		if deliverErr == nil {
			break
		}
		if i < d.cfg.Retries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2 // 指数退避
			case <-d.stop:
				break retry
			}
		}
	}

	entry := d.logger.WithFields(logrus.Fields{
		"event_id": ev.ID,
		"type":     ev.Type,
		"item_id":  ev.ItemID,
	})
	if deliverErr != nil {
		entry.WithError(deliverErr).Warn("event delivery failed")
		if err := d.events.MarkFailed(ctx, ev.ID, deliverErr.Error()); err != nil {
			entry.WithError(err).Error("failed to record event delivery failure")
		}
		return false
	}

	if err := d.events.MarkPublished(ctx, ev.ID); err != nil {
		entry.WithError(err).Error("failed to mark event published")
	}
	return true
}

func (d *Dispatcher) deliverAll(ctx context.Context, payload *Payload) error {
	var errs []error
	for _, sink := range d.sinks {
		err := sink.Deliver(ctx, payload)
		metrics.RecordEventDelivery(sink.Name(), err == nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Stop 停止分发器,等待 worker 退出
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.stop)
	})
	d.wg.Wait()
}
