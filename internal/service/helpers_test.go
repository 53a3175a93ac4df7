package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mautops/approval-chain/internal/approval"
	"github.com/mautops/approval-chain/internal/cache"
	"github.com/mautops/approval-chain/internal/model"
	"github.com/mautops/approval-chain/internal/policy"
	"github.com/mautops/approval-chain/internal/repository"
	"github.com/mautops/approval-chain/internal/service"
	"github.com/mautops/approval-chain/internal/testutil"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	resolver  *policy.Resolver
	approvals service.ApprovalService
	queries   service.QueryService
	policies  service.PolicyService
	audit     service.AuditLogService
}

// newFixture 两级审批看板:lead 审批第 1 层,manager 审批第 2 层,root 为 ws-1 管理员
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	testutil.SeedItem(t, db, "item-x", "ws-1", "board-1", "carol")
	testutil.SeedMember(t, db, "ws-1", "carol", "member", "")
	testutil.SeedMember(t, db, "ws-1", "alice", "lead", "")
	testutil.SeedMember(t, db, "ws-1", "bob", "manager", "")
	testutil.SeedMember(t, db, "ws-1", "root", "admin", "")
	testutil.SeedMember(t, db, "ws-2", "dave", "lead", "")
	testutil.SeedLevel(t, db, "board-1", 1, model.RuleTypeRole, "lead")
	testutil.SeedLevel(t, db, "board-1", 2, model.RuleTypeRole, "manager")

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	dir := policy.NewMemberDirectory(repository.NewMemberRepository(db), cache.NewMemoryCache(), time.Minute, logger)
	resolver := policy.NewResolver(repository.NewLevelPolicyRepository(db), dir, nil, policy.Defaults{
		DefaultApproverRole:           "admin",
		AllowSameApproverAcrossLevels: true,
	})
	engine := approval.NewEngine(db, resolver, nil, logger)
	audit := service.NewAuditLogService(repository.NewAuditLogRepository(db))

	return &fixture{
		db:        db,
		resolver:  resolver,
		approvals: service.NewApprovalService(engine, audit, logger),
		queries:   service.NewQueryService(db, resolver, logger),
		policies:  service.NewPolicyService(repository.NewLevelPolicyRepository(db), resolver, audit, logger),
		audit:     audit,
	}
}

func as(userID string) context.Context {
	return service.WithRequestInfo(context.Background(), service.RequestInfo{
		UserID:    userID,
		RequestID: "req-" + userID,
		IP:        "127.0.0.1",
		UserAgent: "go-test",
	})
}
