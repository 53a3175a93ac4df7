package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mautops/approval-chain/internal/config"
)

// WebhookSink 推送事件到 Webhook
type WebhookSink struct {
	webhooks   []config.WebhookConfig
	httpClient *http.Client
}

// NewWebhookSink 创建 Webhook 投递目标
func NewWebhookSink(webhooks []config.WebhookConfig) *WebhookSink {
	return &WebhookSink{
		webhooks:   webhooks,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name 投递目标名称
func (s *WebhookSink) Name() string {
	return "webhook"
}

// Deliver 推送到全部 Webhook,任一失败即返回错误
func (s *WebhookSink) Deliver(ctx context.Context, payload *Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for _, webhook := range s.webhooks {
		if err := s.send(ctx, webhook, data); err != nil {
			return fmt.Errorf("%s: %w", webhook.URL, err)
		}
	}
	return nil
}

// send 发送 Webhook 请求
func (s *WebhookSink) send(ctx context.Context, webhook config.WebhookConfig, data []byte) error {
	method := webhook.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, webhook.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range webhook.Headers {
		req.Header.Set(key, value)
	}

	switch webhook.AuthType {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+webhook.Token)
	case "basic":
		req.SetBasicAuth(webhook.AuthKey, webhook.Token)
	case "header":
		req.Header.Set(webhook.AuthKey, webhook.Token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}

	return nil
}
