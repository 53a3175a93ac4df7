package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mautops/approval-chain/internal/event"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		c.Set(UserIDKey, c.GetHeader("X-User-ID"))
	}, Handler(hub, NewUpgrader([]string{"*"})))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server, userID string) *gorillaWS.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := map[string][]string{"X-User-ID": {userID}}
	conn, _, err := gorillaWS.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestHub_DeliverToRecipients 测试事件只推送给收件人
func TestHub_DeliverToRecipients(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	server := newTestServer(t, hub)

	alice := dial(t, server, "alice")
	bob := dial(t, server, "bob")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	payload := &event.Payload{
		EventID:    "ev-1",
		EventType:  model.EventApprovalRequested,
		RecordID:   "rec-1",
		ItemID:     "item-1",
		Level:      1,
		Recipients: []string{"alice"},
		Timestamp:  time.Now(),
	}
	require.NoError(t, hub.Deliver(context.Background(), payload))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := alice.ReadMessage()
	require.NoError(t, err)

	var got event.Payload
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ev-1", got.EventID)
	assert.Equal(t, model.EventApprovalRequested, got.EventType)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err)
}

// TestHub_MissingIdentity 测试缺少用户身份时拒绝连接
func TestHub_MissingIdentity(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)
	server := newTestServer(t, hub)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := gorillaWS.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, 0, hub.GetClientCount())
}

// TestHub_SendToOfflineUser 测试收件人不在线
func TestHub_SendToOfflineUser(t *testing.T) {
	hub := NewHub(nil)
	assert.Equal(t, 0, hub.SendToUser("nobody", []byte("{}")))
	assert.Equal(t, "websocket", hub.Name())
	assert.NoError(t, hub.Deliver(context.Background(), &event.Payload{Recipients: []string{"nobody"}}))
}

// TestHub_UnregisterAfterStop 测试 Hub 停止后连接断开不会阻塞读协程
func TestHub_UnregisterAfterStop(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	server := newTestServer(t, hub)

	conn := dial(t, server, "alice")
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Stop()
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())

	done := make(chan struct{})
	go func() {
		hub.unregister(&Client{ID: "late", UserID: "bob", Hub: hub, Send: make(chan []byte)})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unregister blocked after hub stopped")
	}

	// 停止后的新连接被立即关闭
	late := dial(t, server, "bob")
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := late.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout())
	}
	assert.Equal(t, 0, hub.GetClientCount())
}
