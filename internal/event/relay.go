package event

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/sirupsen/logrus"
)

// relayLockKey 多实例部署时只有持有锁的实例执行中继
const relayLockKey = "lock:approval-event-relay"

// RelayConfig 中继配置
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	LockTTL     time.Duration
}

// Relay 发件箱中继,重新投递未成功的事件
type Relay struct {
	events     repository.EventRepository
	dispatcher *Dispatcher
	locker     *redislock.Client // 可为 nil
	logger     *logrus.Logger
	cfg        RelayConfig
	workerID   string
}

// NewRelay 创建发件箱中继
func NewRelay(events repository.EventRepository, dispatcher *Dispatcher, locker *redislock.Client, cfg RelayConfig, logger *logrus.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Relay{
		events:     events,
		dispatcher: dispatcher,
		locker:     locker,
		logger:     logger,
		cfg:        cfg,
		workerID:   "relay-" + uuid.New().String()[:8],
	}
}

// Run 周期执行中继直到 ctx 取消
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.WithError(err).Warn("event relay pass failed")
			}
		}
	}
}

// RunOnce 执行一轮中继,返回投递成功的事件数
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if r.locker != nil {
		lock, err := r.locker.Obtain(ctx, relayLockKey, r.cfg.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return 0, nil
		}
		if err != nil {
			// Redis 不可用时继续,依靠数据库认领避免重复
			r.logger.WithError(err).Warn("could not obtain relay lock; proceeding without redis lock")
		} else {
			defer func() { _ = lock.Release(context.Background()) }()
		}
	}

	// 只处理早于一个周期的事件,刚提交的事件由分发器队列负责
	claimed, err := r.events.ClaimUnpublished(ctx, r.workerID, r.cfg.BatchSize, r.cfg.MaxAttempts, r.cfg.LockTTL, time.Now().Add(-r.cfg.Interval))
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, ev := range claimed {
		if r.dispatcher.Deliver(ctx, ev) {
			delivered++
		}
	}

	if len(claimed) > 0 {
		r.logger.WithFields(logrus.Fields{
			"claimed":   len(claimed),
			"delivered": delivered,
		}).Info("event relay pass completed")
	}
	return delivered, nil
}
