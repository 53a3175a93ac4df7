// Package websocket 向在线用户推送审批事件
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mautops/approval-chain/internal/event"
	"github.com/sirupsen/logrus"
)

// Hub 管理所有 WebSocket 连接
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	stop   chan struct{}
	once   sync.Once
	logger *logrus.Logger

	// 保护 clients map
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行 Hub,直到 Stop 被调用
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 停止 Hub 并关闭所有客户端
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// register 注册客户端,Hub 已停止时返回 false
func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.stop:
		return false
	}
}

// unregister 注销客户端,Hub 已停止时直接返回
func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.stop:
	}
}

// remove 调用方持有写锁
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// SendToUser 向用户的所有连接发送消息,返回送达的连接数
// 发送缓冲已满的连接视为失效并断开
func (h *Hub) SendToUser(userID string, message []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Send <- message:
			sent++
		default:
			h.remove(client)
		}
	}
	return sent
}

// Name 实现 event.Sink
func (h *Hub) Name() string {
	return "websocket"
}

// Deliver 实现 event.Sink,把事件推送给在线的收件人
// 收件人不在线不算失败,事件仍可通过事件日志查询
func (h *Hub) Deliver(_ context.Context, payload *event.Payload) error {
	message, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	delivered := 0
	for _, userID := range payload.Recipients {
		delivered += h.SendToUser(userID, message)
	}
	h.logger.WithFields(logrus.Fields{
		"event_id":   payload.EventID,
		"event_type": payload.EventType,
		"delivered":  delivered,
	}).Debug("event pushed to websocket clients")
	return nil
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
