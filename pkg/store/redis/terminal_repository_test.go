package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termpool/internal/model"
	"termpool/pkg/constants"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *TerminalRepository) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewTerminalRepository(WrapClient(client), time.Minute)
}

func terminal(id string, created time.Time) *model.Terminal {
	return &model.Terminal{
		ID:        id,
		State:     constants.TerminalStateHealthy,
		CreatedAt: created,
		HandleRef: "proc-" + id,
	}
}

func TestTerminalRepository_SaveGet(t *testing.T) {
	mr, repo := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, terminal("terminal-1", time.Now())))

	got, err := repo.Get(ctx, "terminal-1")
	require.NoError(t, err)
	assert.Equal(t, constants.TerminalStateHealthy, got.State)
	assert.Equal(t, time.Minute, mr.TTL(terminalKeyPrefix+"terminal-1"))

	_, err = repo.Get(ctx, "terminal-9")
	assert.Error(t, err)
}

func TestTerminalRepository_PublishAndList(t *testing.T) {
	_, repo := setupTestRedis(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Publish(ctx, []*model.Terminal{
		terminal("terminal-2", base.Add(time.Second)),
		terminal("terminal-1", base),
	}, nil))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "terminal-1", list[0].ID)
	assert.Equal(t, "terminal-2", list[1].ID)

	retired := terminal("terminal-1", base)
	retired.State = constants.TerminalStateRetired
	require.NoError(t, repo.Publish(ctx, []*model.Terminal{terminal("terminal-3", base.Add(2*time.Second))}, []*model.Terminal{retired}))

	list, err = repo.List(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, tm := range list {
		ids = append(ids, tm.ID)
	}
	assert.Equal(t, []string{"terminal-2", "terminal-3"}, ids)
}

func TestTerminalRepository_ExpiredEntriesDropped(t *testing.T) {
	mr, repo := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, terminal("terminal-1", time.Now())))
	mr.FastForward(2 * time.Minute)
	// the index outlives entries, re-create it so List sees a stale id
	mr.SAdd(terminalSetKey, "terminal-1")

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	members, err := mr.Members(terminalSetKey)
	if err == nil {
		assert.NotContains(t, members, "terminal-1")
	}
}

func TestTerminalRepository_Delete(t *testing.T) {
	_, repo := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, terminal("terminal-1", time.Now())))
	require.NoError(t, repo.Delete(ctx, "terminal-1"))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
