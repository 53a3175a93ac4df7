package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
)

// UserIDKey gin 上下文中操作人的键,由身份中间件写入
const UserIDKey = "user_id"

// NewUpgrader 创建连接升级器,allowedOrigins 包含 "*" 时不检查来源
func NewUpgrader(allowedOrigins []string) *gorillaWS.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &gorillaWS.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// Handler 建立推送连接,连接归属于网关认证后的用户
func Handler(hub *Hub, upgrader *gorillaWS.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(UserIDKey)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "missing user identity"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade 已写入错误响应
			hub.logger.WithError(err).WithField("user_id", userID).Warn("failed to upgrade websocket connection")
			return
		}

		client := NewClient(uuid.New().String(), userID, hub, conn)
		if !hub.register(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
