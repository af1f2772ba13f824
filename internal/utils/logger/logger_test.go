package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "willwe.log")
	l, err := New(&Config{LogFile: path, MaxSize: 1, Development: true})
	require.NoError(t, err)

	l.WithOperation("mint").Info("submitted")
	l.WithChain(8453, "Base").Debug("dial")
	l.WithTransaction("0xabc").Warn("pending")
	end := l.TrackPerformance("approve")
	end()
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.GreaterOrEqual(t, len(lines), 5)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "submitted", first["msg"])
	assert.Equal(t, "INFO", first["level"])
	assert.Equal(t, "mint", first["operation"])
	assert.NotEmpty(t, first["correlation_id"])

	var pending map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &pending))
	assert.Equal(t, "0xabc", pending["tx_hash"])
	assert.Equal(t, "WARN", pending["level"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, float64(8453), second["chain_id"])
}

func TestNew_ProductionSkipsDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "willwe.log")
	l, err := New(&Config{LogFile: path, MaxSize: 1})
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("shown")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestWithComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "willwe.log")
	l, err := New(&Config{LogFile: path, MaxSize: 1})
	require.NoError(t, err)

	l.WithComponent("history").Info("migrated")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "history", entry["component"])
	assert.Equal(t, "migrated", entry["msg"])
}

func TestPrettyEncoder(t *testing.T) {
	enc := PrettyEncoder()
	buf, err := enc.EncodeEntry(zapcore.Entry{
		Level:   zapcore.WarnLevel,
		Time:    time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC),
		Message: "gas estimate raised",
	}, nil)
	require.NoError(t, err)
	defer buf.Free()

	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "13:04:05 "))
	assert.Contains(t, line, colorYellow+"[WARN]"+colorReset)
	assert.Contains(t, line, "gas estimate raised")
}
