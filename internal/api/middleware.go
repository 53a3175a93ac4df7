package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mautops/approval-chain/internal/service"
	"github.com/mautops/approval-chain/internal/websocket"
)

// 请求头与 gin 上下文键
const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
	RequestIDKey    = "request_id"
	UserIDKey       = websocket.UserIDKey
)

// RequestIDMiddleware 生成或沿用请求 ID
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

// IdentityMiddleware 从网关设置的 X-User-ID 读取操作人
// 并把请求信息写入 request context,供服务层审计使用
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			Error(c, http.StatusUnauthorized, CodeUnauthorized, "missing user identity", "the "+HeaderUserID+" header is required")
			return
		}
		c.Set(UserIDKey, userID)

		ctx := service.WithRequestInfo(c.Request.Context(), service.RequestInfo{
			UserID:    userID,
			RequestID: c.GetString(RequestIDKey),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
