package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termpool/internal/jobs"
	"termpool/internal/model"
	"termpool/internal/pool"
	"termpool/pkg/adapter/scripted"
	"termpool/pkg/audit"
	"termpool/pkg/config"
	"termpool/pkg/constants"
	redisstore "termpool/pkg/store/redis"
)

func startTestPool(t *testing.T, size int) *pool.Manager {
	t.Helper()
	cfg := config.Default()
	cfg.Pool.Size = size
	cfg.Pool.HealthInterval = time.Hour
	cfg.Pool.DrainInterval = 10 * time.Millisecond
	cfg.Pool.ShutdownTimeout = time.Second

	m := pool.NewManager(cfg, scripted.New(), audit.New(), nil)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Stop(context.Background()) })
	return m
}

func completeTask(t *testing.T, m *pool.Manager) string {
	t.Helper()
	task, err := m.Submit(context.Background(), &model.SubmitRequest{Payload: map[string]interface{}{"prompt": "noop"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := m.Task(task.ID)
		return err == nil && got.Status == constants.TaskStatusCompleted
	}, 3*time.Second, 5*time.Millisecond)
	return task.ID
}

func TestMetricsReportJob(t *testing.T) {
	m := startTestPool(t, 2)
	job := newMetricsReportJob(time.Minute, m)

	aligned, ok := job.(jobs.AlignedJob)
	require.True(t, ok)
	assert.True(t, aligned.AlignToInterval())
	assert.NoError(t, job.Run(context.Background()))
}

func TestTaskRetentionJob(t *testing.T) {
	m := startTestPool(t, 1)
	id := completeTask(t, m)

	require.NoError(t, newTaskRetentionJob(time.Minute, time.Hour, m).Run(context.Background()))
	_, err := m.Task(id)
	assert.NoError(t, err, "recent tasks are kept")

	require.NoError(t, newTaskRetentionJob(time.Minute, 0, m).Run(context.Background()))
	_, err = m.Task(id)
	assert.ErrorIs(t, err, pool.ErrTaskNotFound)
}

func TestTerminalPublishJob(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := redisstore.NewTerminalRepository(redisstore.WrapClient(client), time.Minute)

	m := startTestPool(t, 2)
	require.NoError(t, newTerminalPublishJob(time.Second, m, repo).Run(context.Background()))

	published, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, published, 2)
	for _, term := range published {
		assert.Equal(t, constants.TerminalStateHealthy, term.State)
	}
}

func TestSizeCommand(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	defer func() { configPath = "" }()

	var out bytes.Buffer
	sizeCmd.SetOut(&out)
	defer sizeCmd.SetOut(nil)
	require.NoError(t, sizeCmd.RunE(sizeCmd, nil))

	var estimate map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &estimate))
	assert.GreaterOrEqual(t, estimate["target"], float64(1))
	assert.Equal(t, 0.8, estimate["safetyMargin"])
}
