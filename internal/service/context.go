package service

import "context"

type contextKey string

// 请求上下文中的键,由 API 中间件写入
const (
	ContextKeyUserID    contextKey = "user_id"
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyIP        contextKey = "ip"
	ContextKeyUserAgent contextKey = "user_agent"
)

// RequestInfo 请求信息
type RequestInfo struct {
	UserID    string
	RequestID string
	IP        string
	UserAgent string
}

// WithRequestInfo 将请求信息写入 context
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	ctx = context.WithValue(ctx, ContextKeyUserID, info.UserID)
	ctx = context.WithValue(ctx, ContextKeyRequestID, info.RequestID)
	ctx = context.WithValue(ctx, ContextKeyIP, info.IP)
	return context.WithValue(ctx, ContextKeyUserAgent, info.UserAgent)
}

// UserIDFromContext 从 context 获取操作人
func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ContextKeyUserID)
}

// RequestIDFromContext 从 context 获取请求 ID
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ContextKeyRequestID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
