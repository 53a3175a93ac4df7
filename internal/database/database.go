package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/approval-chain/internal/config"
	"github.com/mautops/approval-chain/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置,未配置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	pc := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if pc.MaxIdleConns == 0 {
		pc.MaxIdleConns = 10
	}
	if pc.MaxOpenConns == 0 {
		pc.MaxOpenConns = 100
	}
	if pc.ConnMaxLifetime == 0 {
		pc.ConnMaxLifetime = 3600
	}
	if pc.ConnMaxIdleTime == 0 {
		pc.ConnMaxIdleTime = 600
	}
	return pc
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "", "postgres":
		dialector = postgres.Open(BuildDSN(cfg))
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	// TranslateError 将唯一约束冲突统一为 gorm.ErrDuplicatedKey
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	poolConfig := GetPoolConfig(cfg)
	if cfg.Driver == "sqlite" {
		// sqlite 单写者
		poolConfig.MaxOpenConns = 1
	}
	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// IsSQLite 判断是否为 SQLite
func IsSQLite(db *gorm.DB) bool {
	name := db.Dialector.Name()
	return name == "sqlite" || name == "sqlite3"
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	// SQLite 不支持 jsonb,手动建表
	if IsSQLite(db) {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		if err := db.AutoMigrate(
			&model.ItemModel{},
			&model.ApprovalRecordModel{},
			&model.ApprovalEventModel{},
			&model.ApprovalLevelRuleModel{},
			&model.ApprovalBoardSettingModel{},
			&model.WorkspaceMemberModel{},
			&model.ItemStatusHistoryModel{},
			&model.AuditLogModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

var sqliteTables = []struct {
	name string
	ddl  string
}{
	{"items", `
		CREATE TABLE IF NOT EXISTS items (
			id VARCHAR(64) PRIMARY KEY,
			workspace_id VARCHAR(64) NOT NULL,
			board_id VARCHAR(64) NOT NULL,
			creator_id VARCHAR(64) NOT NULL,
			name VARCHAR(255),
			board_name VARCHAR(255),
			workspace_name VARCHAR(255),
			overall_approval_status VARCHAR(16) NOT NULL DEFAULT 'draft',
			approval_level_count INTEGER NOT NULL DEFAULT 0,
			approval_cycle INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"approval_records", `
		CREATE TABLE IF NOT EXISTS approval_records (
			id VARCHAR(64) PRIMARY KEY,
			item_id VARCHAR(64) NOT NULL,
			workspace_id VARCHAR(64) NOT NULL,
			board_id VARCHAR(64) NOT NULL,
			level INTEGER NOT NULL,
			cycle INTEGER NOT NULL DEFAULT 1,
			revision INTEGER NOT NULL DEFAULT 1,
			status VARCHAR(16) NOT NULL,
			approver_id VARCHAR(64),
			comments TEXT,
			changes_requested BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			decided_at DATETIME
		)`},
	{"approval_events", `
		CREATE TABLE IF NOT EXISTS approval_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id VARCHAR(64) NOT NULL UNIQUE,
			record_id VARCHAR(64) NOT NULL,
			item_id VARCHAR(64) NOT NULL,
			type VARCHAR(64) NOT NULL,
			payload TEXT NOT NULL,
			emitted_at DATETIME NOT NULL,
			published_at DATETIME,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			locked_at DATETIME,
			locked_by VARCHAR(64)
		)`},
	{"approval_level_rules", `
		CREATE TABLE IF NOT EXISTS approval_level_rules (
			id VARCHAR(64) PRIMARY KEY,
			board_id VARCHAR(64) NOT NULL,
			level INTEGER NOT NULL,
			type VARCHAR(16) NOT NULL,
			rule_values TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"approval_board_settings", `
		CREATE TABLE IF NOT EXISTS approval_board_settings (
			board_id VARCHAR(64) PRIMARY KEY,
			workspace_id VARCHAR(64),
			allow_resubmit_after_reject BOOLEAN NOT NULL DEFAULT 0,
			allow_same_approver_across_levels BOOLEAN NOT NULL DEFAULT 1,
			updated_at DATETIME NOT NULL
		)`},
	{"workspace_members", `
		CREATE TABLE IF NOT EXISTS workspace_members (
			workspace_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			display_name VARCHAR(255),
			role VARCHAR(64),
			department VARCHAR(64),
			created_at DATETIME NOT NULL,
			PRIMARY KEY (workspace_id, user_id)
		)`},
	{"item_status_history", `
		CREATE TABLE IF NOT EXISTS item_status_history (
			id VARCHAR(64) PRIMARY KEY,
			item_id VARCHAR(64) NOT NULL,
			from_status VARCHAR(16),
			to_status VARCHAR(16) NOT NULL,
			record_id VARCHAR(64),
			operator VARCHAR(64) NOT NULL,
			created_at DATETIME NOT NULL
		)`},
	{"audit_logs", `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(64) NOT NULL,
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)`},
}

// createSQLiteTables 为 SQLite 手动创建表(使用 TEXT 替代 jsonb)
func createSQLiteTables(db *gorm.DB) error {
	for _, t := range sqliteTables {
		if err := db.Exec(t.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

var indexes = []struct {
	name string
	ddl  string
}{
	// 同一事项同一轮同一层级的同一次尝试只有一条记录,升级重放时插入被忽略
	{"idx_records_item_cycle_level_rev", "CREATE UNIQUE INDEX IF NOT EXISTS idx_records_item_cycle_level_rev ON approval_records(item_id, cycle, level, revision)"},
	// 每个事项最多一条 pending 记录
	{"idx_records_item_pending", "CREATE UNIQUE INDEX IF NOT EXISTS idx_records_item_pending ON approval_records(item_id) WHERE status = 'pending'"},
	{"idx_records_status_workspace", "CREATE INDEX IF NOT EXISTS idx_records_status_workspace ON approval_records(status, workspace_id)"},
	{"idx_records_approver", "CREATE INDEX IF NOT EXISTS idx_records_approver ON approval_records(approver_id)"},
	{"idx_events_item_seq", "CREATE INDEX IF NOT EXISTS idx_events_item_seq ON approval_events(item_id, seq)"},
	{"idx_events_unpublished", "CREATE INDEX IF NOT EXISTS idx_events_unpublished ON approval_events(seq) WHERE published_at IS NULL"},
	{"idx_level_rules_board_level", "CREATE UNIQUE INDEX IF NOT EXISTS idx_level_rules_board_level ON approval_level_rules(board_id, level)"},
	{"idx_members_user", "CREATE INDEX IF NOT EXISTS idx_members_user ON workspace_members(user_id)"},
	{"idx_history_item_id", "CREATE INDEX IF NOT EXISTS idx_history_item_id ON item_status_history(item_id)"},
	{"idx_audit_resource", "CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)"},
	{"idx_audit_user_id", "CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_logs(user_id)"},
	{"idx_audit_created_at", "CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_logs(created_at)"},
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	for _, idx := range indexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	// PostgreSQL 特定的 GIN 索引
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_events_payload_gin ON approval_events USING GIN (payload)").Error; err != nil {
			return fmt.Errorf("failed to create idx_events_payload_gin: %w", err)
		}
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}
