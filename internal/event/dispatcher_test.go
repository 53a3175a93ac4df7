package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mautops/approval-chain/internal/config"
	"github.com/mautops/approval-chain/internal/event"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/mautops/approval-chain/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []*event.Payload
	err      error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, p *event.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, p)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func storeEvent(t *testing.T, repo repository.EventRepository, itemID string, emittedAt time.Time) *model.ApprovalEventModel {
	t.Helper()
	record := &model.ApprovalRecordModel{ID: "r-" + itemID, ItemID: itemID, WorkspaceID: "ws-1", BoardID: "b-1", Level: 1, Cycle: 1, Revision: 1, Status: model.RecordStatusApproved}
	item := &model.ItemModel{ID: itemID, Name: "Invoice", CreatorID: "creator"}
	p := event.NewPayload(model.EventApprovalApproved, record, item, "approver", emittedAt)
	p.Recipients = []string{"creator"}
	ev, err := p.ToModel()
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), ev))
	return ev
}

func loadEvent(t *testing.T, db *gorm.DB, id string) *model.ApprovalEventModel {
	var ev model.ApprovalEventModel
	require.NoError(t, db.Where("id = ?", id).First(&ev).Error)
	return &ev
}

// TestDispatcher_Publish 测试事件投递后标记为已发布
func TestDispatcher_Publish(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewEventRepository(db)
	sink := &recordingSink{}
	d := event.NewDispatcher(repo, []event.Sink{sink}, event.DispatcherConfig{Workers: 1}, quietLogger())
	defer d.Stop()

	ev := storeEvent(t, repo, "item-1", time.Now())
	d.Publish(context.Background(), []*model.ApprovalEventModel{ev})

	require.Eventually(t, func() bool {
		var stored model.ApprovalEventModel
		if err := db.Where("id = ?", ev.ID).First(&stored).Error; err != nil {
			return false
		}
		return stored.PublishedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, 1, sink.count())
	assert.Equal(t, "item-1", sink.payloads[0].ItemID)
	assert.Equal(t, []string{"creator"}, sink.payloads[0].Recipients)
}

// TestDispatcher_DeliverFailure 测试投递失败时记录错误且不标记发布
func TestDispatcher_DeliverFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewEventRepository(db)
	sink := &recordingSink{err: errors.New("downstream unavailable")}
	d := event.NewDispatcher(repo, []event.Sink{sink}, event.DispatcherConfig{Workers: 1, Retries: 2, RetryBackoff: time.Millisecond}, quietLogger())
	defer d.Stop()

	ev := storeEvent(t, repo, "item-1", time.Now())
	assert.False(t, d.Deliver(context.Background(), ev))

	stored := loadEvent(t, db, ev.ID)
	assert.Nil(t, stored.PublishedAt)
	assert.Equal(t, 1, stored.Attempts)
	assert.Contains(t, stored.LastError, "downstream unavailable")
}

// TestRelay_RunOnce 测试中继补投未发布的事件
func TestRelay_RunOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewEventRepository(db)
	sink := &recordingSink{}
	d := event.NewDispatcher(repo, []event.Sink{sink}, event.DispatcherConfig{Workers: 1}, quietLogger())
	defer d.Stop()

	old := storeEvent(t, repo, "item-1", time.Now().Add(-time.Minute))
	fresh := storeEvent(t, repo, "item-2", time.Now().Add(time.Minute))

	relay := event.NewRelay(repo, d, nil, event.RelayConfig{Interval: time.Second, BatchSize: 10, MaxAttempts: 3}, quietLogger())
	delivered, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	assert.NotNil(t, loadEvent(t, db, old.ID).PublishedAt)
	// 刚写入的事件留给分发器
	assert.Nil(t, loadEvent(t, db, fresh.ID).PublishedAt)
}

// blockingSink 投递时阻塞直到 release 关闭
type blockingSink struct {
	recordingSink
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Deliver(ctx context.Context, p *event.Payload) error {
	s.entered <- struct{}{}
	<-s.release
	return s.recordingSink.Deliver(ctx, p)
}

// TestDispatcher_SkipsEventClaimedByRelay 测试中继认领中的事件不会被队列再次投递
func TestDispatcher_SkipsEventClaimedByRelay(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewEventRepository(db)
	sink := &recordingSink{}
	d := event.NewDispatcher(repo, []event.Sink{sink}, event.DispatcherConfig{Workers: 1}, quietLogger())
	defer d.Stop()

	ev := storeEvent(t, repo, "item-1", time.Now().Add(-time.Minute))
	claimed, err := repo.ClaimUnpublished(context.Background(), "relay-1", 10, 3, time.Minute, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	d.Publish(context.Background(), []*model.ApprovalEventModel{ev})
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
	stored := loadEvent(t, db, ev.ID)
	require.NotNil(t, stored.LockedBy)
	assert.Equal(t, "relay-1", *stored.LockedBy)
	assert.Equal(t, 0, stored.Attempts)
}

// TestDispatcher_RelaySkipsInFlightEvent 测试队列投递中的事件不会被中继重复投递
func TestDispatcher_RelaySkipsInFlightEvent(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewEventRepository(db)
	sink := &blockingSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	d := event.NewDispatcher(repo, []event.Sink{sink}, event.DispatcherConfig{Workers: 1}, quietLogger())
	defer d.Stop()

	ev := storeEvent(t, repo, "item-1", time.Now().Add(-time.Minute))
	d.Publish(context.Background(), []*model.ApprovalEventModel{ev})

	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not start delivery")
	}

	relay := event.NewRelay(repo, d, nil, event.RelayConfig{Interval: time.Second, BatchSize: 10, MaxAttempts: 3}, quietLogger())
	delivered, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)

	close(sink.release)
	require.Eventually(t, func() bool {
		return loadEvent(t, db, ev.ID).PublishedAt != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1, loadEvent(t, db, ev.ID).Attempts)
}

// TestWebhookSink_Deliver 测试 Webhook 请求内容与认证头
func TestWebhookSink_Deliver(t *testing.T) {
	var gotAuth string
	var got event.Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := event.NewWebhookSink([]config.WebhookConfig{{URL: server.URL, AuthType: "bearer", Token: "secret"}})
	err := sink.Deliver(context.Background(), &event.Payload{EventType: model.EventApprovalCompleted, ItemID: "item-1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, model.EventApprovalCompleted, got.EventType)
	assert.Equal(t, "item-1", got.ItemID)
}

// TestWebhookSink_ErrorStatus 测试非 2xx 响应视为失败
func TestWebhookSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := event.NewWebhookSink([]config.WebhookConfig{{URL: server.URL}})
	err := sink.Deliver(context.Background(), &event.Payload{EventType: model.EventApprovalApproved})
	assert.Error(t, err)
}
