package event

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink 将事件写入日志,未配置其他投递目标时使用
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink 创建日志投递目标
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Name 投递目标名称
func (s *LogSink) Name() string {
	return "log"
}

// Deliver 写日志
func (s *LogSink) Deliver(_ context.Context, payload *Payload) error {
	s.logger.WithFields(logrus.Fields{
		"event_id":   payload.EventID,
		"event_type": payload.EventType,
		"item_id":    payload.ItemID,
		"record_id":  payload.RecordID,
		"level":      payload.Level,
		"actor_id":   payload.ActorID,
		"recipients": payload.Recipients,
	}).Info("approval event")
	return nil
}
