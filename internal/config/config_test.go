package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoad_FromFile 测试从配置文件加载配置
func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: sqlite
  path: /tmp/approval.db
approval:
  default_approver_role: owner
  allow_resubmit_after_reject: true
  directory_cache_ttl: 10s
events:
  relay_interval: 2s
  webhooks:
    - url: https://hooks.example.com/approval
      auth_type: bearer
      token: secret
nats:
  url: nats://localhost:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "owner", cfg.Approval.DefaultApproverRole)
	assert.True(t, cfg.Approval.AllowResubmitAfterReject)
	assert.True(t, cfg.Approval.AllowSameApproverAcrossLevels)
	assert.Equal(t, 10*time.Second, cfg.Approval.DirectoryCacheTTL)
	assert.Equal(t, 2*time.Second, cfg.Events.RelayInterval)
	require.Len(t, cfg.Events.Webhooks, 1)
	assert.Equal(t, "bearer", cfg.Events.Webhooks[0].AuthType)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "notifications.approval", cfg.NATS.SubjectPrefix)
}

// TestLoad_EnvOverride 测试环境变量覆盖
func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_APPROVAL_DEFAULT_APPROVER_ROLE", "reviewer")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8000\n"))
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "reviewer", cfg.Approval.DefaultApproverRole)
}

// TestLoad_MissingFile 测试指定的配置文件不存在
func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestDefault 测试默认配置
func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "admin", cfg.Approval.DefaultApproverRole)
	assert.False(t, cfg.Approval.AllowResubmitAfterReject)
	assert.Equal(t, 5, cfg.Events.MaxAttempts)
	assert.Equal(t, "approval-events", cfg.PubSub.TopicID)
	assert.False(t, IsProduction(cfg))
	assert.False(t, IsProduction(nil))
}

// TestConfigWatcher_Reload 测试配置变更回调
func TestConfigWatcher_Reload(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	w := NewConfigWatcher(cfg, path, nil)
	require.NoError(t, w.viper.ReadInConfig())

	var got *Config
	w.OnConfigChange(func(c *Config) { got = c })

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\napproval:\n  default_approver_role: lead\n"), 0o644))
	require.NoError(t, w.viper.ReadInConfig())
	w.reload()

	require.NotNil(t, got)
	assert.Equal(t, "error", got.Log.Level)
	assert.Equal(t, "lead", got.Approval.DefaultApproverRole)
	assert.Equal(t, 8080, got.Server.Port)
	assert.Same(t, got, w.GetConfig())

	w.Stop()
	got = nil
	w.reload()
	assert.Nil(t, got)
}
