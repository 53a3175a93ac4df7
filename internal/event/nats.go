package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NotificationMessage 发布到 NATS 的通知消息
type NotificationMessage struct {
	EventType    string   `json:"event_type"`
	ActorID      string   `json:"actor_id"`
	Recipients   []string `json:"recipients"`
	ResourceType string   `json:"resource_type"`
	ResourceID   string   `json:"resource_id"`
	IsActionable bool     `json:"is_actionable"`
	Category     string   `json:"category"`
	Payload      *Payload `json:"payload"`
}

// NATSSink 发布通知到 NATS,主题为 <prefix>.<event_type>
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSSink 连接 NATS 并创建投递目标
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("approval-chain"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect nats: %w", err)
	}
	return &NATSSink{conn: conn, prefix: prefix}, nil
}

// Name 投递目标名称
func (s *NATSSink) Name() string {
	return "nats"
}

// Deliver 发布通知,无收件人的事件跳过
func (s *NATSSink) Deliver(_ context.Context, payload *Payload) error {
	if len(payload.Recipients) == 0 {
		return nil
	}

	msg := &NotificationMessage{
		EventType:    payload.EventType,
		ActorID:      payload.ActorID,
		Recipients:   payload.Recipients,
		ResourceType: "item",
		ResourceID:   payload.ItemID,
		IsActionable: payload.EventType == "approval.requested" || payload.ChangesRequested,
		Category:     "approval",
		Payload:      payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	return s.conn.Publish(s.Subject(payload.EventType), data)
}

// Subject 事件对应的主题
func (s *NATSSink) Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", s.prefix, eventType)
}

// CheckHealth 检查 NATS 连接
func (s *NATSSink) CheckHealth(_ context.Context) error {
	if !s.conn.IsConnected() {
		return fmt.Errorf("nats status: %s", s.conn.Status())
	}
	return nil
}

// Close 关闭连接
func (s *NATSSink) Close() {
	_ = s.conn.Drain()
}
