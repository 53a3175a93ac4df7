package event

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubSink 发布事件到 Google Pub/Sub
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSink 创建 Pub/Sub 投递目标
func NewPubSubSink(ctx context.Context, projectID, topicID string) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	// 同一事项的事件按顺序投递
	topic.EnableMessageOrdering = true
	return &PubSubSink{client: client, topic: topic}, nil
}

// Name 投递目标名称
func (s *PubSubSink) Name() string {
	return "pubsub"
}

// Deliver 发布并等待服务端确认
func (s *PubSubSink) Deliver(ctx context.Context, payload *Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := s.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: payload.ItemID,
		Attributes: map[string]string{
			"event_type": payload.EventType,
			"event_id":   payload.EventID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		s.topic.ResumePublish(payload.ItemID)
		return err
	}
	return nil
}

// Close 停止发布并关闭客户端
func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
