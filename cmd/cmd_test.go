package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/approval-chain/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// writeSQLiteConfig 写入使用临时 sqlite 文件的配置
func writeSQLiteConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "approval.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("database:\n  driver: sqlite\n  path: %s\nlog:\n  level: error\n", dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { configPath = "" })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := GetRootCmd()
	assert.Equal(t, "approval-chain", root.Use)

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"server", "migrate", "reconcile"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrateCommand(t *testing.T) {
	cfgPath, dbPath := writeSQLiteConfig(t)

	_, err := execute(t, "migrate", "--config", cfgPath)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&model.ApprovalRecordModel{}))
	assert.True(t, db.Migrator().HasTable(&model.ApprovalEventModel{}))
	sqlDB, _ := db.DB()
	sqlDB.Close()
}

func TestReconcileCommand(t *testing.T) {
	t.Run("requires record id", func(t *testing.T) {
		_, err := execute(t, "reconcile")
		assert.Error(t, err)
	})

	t.Run("unknown record", func(t *testing.T) {
		cfgPath, _ := writeSQLiteConfig(t)
		_, err := execute(t, "reconcile", "--config", cfgPath, "missing-record")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 1 records failed")
	})
}
