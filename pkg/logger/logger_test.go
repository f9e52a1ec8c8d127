package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termpool/pkg/config"
)

func useFileLogger(t *testing.T, level string) string {
	t.Helper()
	prevLog, prevSugar := Log, sugar
	t.Cleanup(func() { Log, sugar = prevLog, prevSugar })

	path := filepath.Join(t.TempDir(), "logs", "termpool.log")
	require.NoError(t, InitWith(config.LoggerConfig{
		Level:  level,
		Output: "file",
		File:   config.LoggerFileConfig{Path: path},
	}))
	return path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	_ = Sync()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestInitWith_FileOutputCarriesTraceID(t *testing.T) {
	path := useFileLogger(t, "info")

	InfoCtx(WithTraceID(context.Background(), "task-42"), "task submitted, priority=%d", 3)
	Warnf("queue at %d%%", 90)

	out := readLog(t, path)
	assert.Contains(t, out, "task-42\ttask submitted, priority=3")
	assert.Contains(t, out, defaultTraceID+"\tqueue at 90%")
}

func TestInitWith_LevelFilters(t *testing.T) {
	path := useFileLogger(t, "warn")

	DebugCtx(context.Background(), "probe ok")
	InfoCtx(context.Background(), "terminal created")
	ErrorCtx(context.Background(), "launch failed")

	out := readLog(t, path)
	assert.NotContains(t, out, "probe ok")
	assert.NotContains(t, out, "terminal created")
	assert.Contains(t, out, "launch failed")
}

func TestWithTraceID(t *testing.T) {
	assert.Equal(t, "abc", getTraceFields(WithTraceID(context.Background(), "abc")))
	assert.Equal(t, defaultTraceID, getTraceFields(WithTraceID(context.Background(), "")))
	assert.Equal(t, defaultTraceID, getTraceFields(context.Background()))
}
