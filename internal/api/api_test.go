package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/approval-chain/internal/api"
	"github.com/mautops/approval-chain/internal/approval"
	"github.com/mautops/approval-chain/internal/cache"
	"github.com/mautops/approval-chain/internal/config"
	"github.com/mautops/approval-chain/internal/database"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/policy"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/mautops/approval-chain/internal/service"
	"github.com/mautops/approval-chain/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T, mutate func(cfg *config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	testutil.SeedItem(t, db, "item-1", "ws-1", "board-1", "carol")
	testutil.SeedMember(t, db, "ws-1", "carol", "member", "")
	testutil.SeedMember(t, db, "ws-1", "alice", "lead", "")
	testutil.SeedMember(t, db, "ws-1", "bob", "manager", "")
	testutil.SeedMember(t, db, "ws-1", "root", "admin", "")
	testutil.SeedLevel(t, db, "board-1", 1, model.RuleTypeRole, "lead")
	testutil.SeedLevel(t, db, "board-1", 2, model.RuleTypeRole, "manager")

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := config.Default()
	cfg.RateLimit.RPS = 0
	if mutate != nil {
		mutate(cfg)
	}

	dir := policy.NewMemberDirectory(repository.NewMemberRepository(db), cache.NewMemoryCache(), time.Minute, logger)
	resolver := policy.NewResolver(repository.NewLevelPolicyRepository(db), dir, nil, policy.Defaults{DefaultApproverRole: "admin", AllowSameApproverAcrossLevels: true})
	engine := approval.NewEngine(db, resolver, nil, logger)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	return api.SetupRoutes(api.RouterDeps{
		Config:          cfg,
		Logger:          logger,
		ApprovalService: service.NewApprovalService(engine, audit, logger),
		QueryService:    service.NewQueryService(db, resolver, logger),
		PolicyService:   service.NewPolicyService(repository.NewLevelPolicyRepository(db), resolver, audit, logger),
		HealthChecks: []api.HealthCheck{
			{Name: "database", Check: func(ctx context.Context) error { return database.CheckHealth(ctx, db) }},
		},
	})
}

func do(t *testing.T, router *gin.Engine, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(api.HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

// TestAPI_ApprovalFlow 测试提交、审批与查询接口
func TestAPI_ApprovalFlow(t *testing.T) {
	router := newRouter(t, nil)

	w, env := do(t, router, http.MethodPost, "/api/v1/items/item-1/submit", "carol", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var record model.ApprovalRecordModel
	require.NoError(t, json.Unmarshal(env.Data, &record))
	assert.Equal(t, 1, record.Level)

	w, env = do(t, router, http.MethodPost, "/api/v1/items/item-1/submit", "carol", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(approval.CodeAlreadySubmitted), env.Code)

	w, env = do(t, router, http.MethodGet, "/api/v1/approvals/mine", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []model.ApprovalRecordModel
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, record.ID, mine[0].ID)

	w, env = do(t, router, http.MethodPost, "/api/v1/approvals/"+record.ID+"/decide", "bob", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(approval.CodeNotEligible), env.Code)

	w, env = do(t, router, http.MethodPost, "/api/v1/approvals/"+record.ID+"/decide", "alice", map[string]string{"status": "approved", "comments": "looks good"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result approval.DecisionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.False(t, result.Final)
	require.NotNil(t, result.NextRecord)

	w, env = do(t, router, http.MethodPost, "/api/v1/approvals/"+record.ID+"/decide", "alice", map[string]string{"status": "approved"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(approval.CodeAlreadyDecided), env.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/approvals/"+result.NextRecord.ID+"/request-changes", "bob", map[string]string{"comments": "fix it"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/items/item-1/resubmit", "carol", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = do(t, router, http.MethodGet, "/api/v1/items/item-1/approvals", "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []model.ApprovalRecordModel
	require.NoError(t, json.Unmarshal(env.Data, &records))
	assert.Len(t, records, 3)

	w, env = do(t, router, http.MethodGet, "/api/v1/items/item-1/events", "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []model.ApprovalEventModel
	require.NoError(t, json.Unmarshal(env.Data, &events))
	assert.Len(t, events, 5)

	w, _ = do(t, router, http.MethodGet, "/api/v1/items/item-1/history", "carol", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestAPI_Errors 测试错误映射
func TestAPI_Errors(t *testing.T) {
	router := newRouter(t, nil)

	w, env := do(t, router, http.MethodPost, "/api/v1/items/item-1/submit", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, api.CodeUnauthorized, env.Code)

	w, env = do(t, router, http.MethodPost, "/api/v1/items/missing/submit", "carol", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(approval.CodeNotFound), env.Code)

	w, env = do(t, router, http.MethodPost, "/api/v1/approvals/r-1/decide", "alice", map[string]string{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(approval.CodeValidation), env.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/approvals/r-1/decide", bytes.NewBufferString("{"))
	req.Header.Set(api.HeaderUserID, "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w, env = do(t, router, http.MethodGet, "/api/v1/approvals/mine?status=unknown", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(approval.CodeValidation), env.Code)
}

// TestAPI_BoardPolicy 测试看板审批策略接口
func TestAPI_BoardPolicy(t *testing.T) {
	router := newRouter(t, nil)

	w, env := do(t, router, http.MethodPut, "/api/v1/boards/board-1/approval-policy", "carol", map[string]interface{}{
		"levels": []map[string]interface{}{
			{"type": "users", "values": []string{"carol"}},
		},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(approval.CodeNotEligible), env.Code)

	w, _ = do(t, router, http.MethodPut, "/api/v1/boards/board-1/approval-policy", "root", map[string]interface{}{
		"levels": []map[string]interface{}{
			{"type": "users", "values": []string{"bob"}},
		},
		"allow_resubmit_after_reject": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = do(t, router, http.MethodGet, "/api/v1/boards/board-1/approval-policy", "root", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p policy.LevelPolicy
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.Len(t, p.Levels, 1)
	assert.Equal(t, model.RuleTypeUsers, p.Levels[0].Rule.Type)
	assert.True(t, p.AllowResubmitAfterReject)
}

// TestAPI_ReconcileRequiresAdmin 测试补偿接口仅对工作区管理员开放
func TestAPI_ReconcileRequiresAdmin(t *testing.T) {
	router := newRouter(t, nil)

	w, env := do(t, router, http.MethodPost, "/api/v1/items/item-1/submit", "carol", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var record model.ApprovalRecordModel
	require.NoError(t, json.Unmarshal(env.Data, &record))

	w, _ = do(t, router, http.MethodPost, "/api/v1/approvals/"+record.ID+"/decide", "alice", map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = do(t, router, http.MethodPost, "/api/v1/approvals/"+record.ID+"/reconcile", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(approval.CodeNotEligible), env.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/approvals/"+record.ID+"/reconcile", "root", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

// TestAPI_Middleware 测试请求 ID、健康检查、CORS 与限流
func TestAPI_Middleware(t *testing.T) {
	router := newRouter(t, func(cfg *config.Config) {
		cfg.RateLimit.RPS = 1
		cfg.RateLimit.Burst = 1
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(api.HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(api.HeaderRequestID))
	assert.Contains(t, w.Body.String(), `"database":"healthy"`)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/approvals/mine", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	first, _ := do(t, router, http.MethodGet, "/api/v1/approvals/mine", "alice", nil)
	assert.Equal(t, http.StatusOK, first.Code)
	second, env := do(t, router, http.MethodGet, "/api/v1/approvals/mine", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, api.CodeRateLimited, env.Code)
}

// TestAPI_UnhealthyDependency 测试依赖不可用时返回 503
func TestAPI_UnhealthyDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	hc := api.NewHealthController(api.HealthCheck{Name: "nats", Check: func(context.Context) error {
		return errors.New("connection refused")
	}})
	router.GET("/health", hc.Check)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

// TestStatusFor 测试错误码到 HTTP 状态码的映射
func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{approval.ErrValidation, http.StatusBadRequest},
		{approval.ErrAlreadyDecided, http.StatusConflict},
		{approval.ErrNotEligible, http.StatusForbidden},
		{approval.ErrAlreadySubmitted, http.StatusConflict},
		{approval.ErrNotEditable, http.StatusConflict},
		{approval.ErrStorageConflict, http.StatusConflict},
		{approval.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, api.StatusFor(tt.err), tt.err.Error())
	}
}
