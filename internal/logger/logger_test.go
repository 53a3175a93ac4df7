package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/mautops/approval-chain/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_JSON 测试 JSON 格式与默认字段
func TestNew_JSON(t *testing.T) {
	l, err := New(&config.LogConfig{Level: "warn", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.WithField("item_id", "item-1").Warn("item submitted")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, ServiceName, entry["service"])
	assert.Equal(t, "item-1", entry["item_id"])
	assert.Equal(t, "item submitted", entry["msg"])
	assert.Equal(t, "warning", entry["level"])
}

// TestParseLevel 测试日志级别解析
func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}
