package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"termpool/internal/model"
)

const (
	terminalKeyPrefix = "termpool:terminal:" // terminal state, JSON
	terminalSetKey    = "termpool:terminals" // ids of published terminals
)

// TerminalRepository publishes terminal state to Redis with a TTL so
// dashboards and standby instances can read the pool without the API.
// Entries of a stopped instance expire on their own.
type TerminalRepository struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewTerminalRepository creates a terminal repository; entries live for ttl
// after their last publish
func NewTerminalRepository(client *RedisClient, ttl time.Duration) *TerminalRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TerminalRepository{redis: client.GetClient(), ttl: ttl}
}

// Save publishes one terminal
func (r *TerminalRepository) Save(ctx context.Context, t *model.Terminal) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal terminal: %w", err)
	}

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, terminalKeyPrefix+t.ID, data, r.ttl)
	pipe.SAdd(ctx, terminalSetKey, t.ID)
	pipe.Expire(ctx, terminalSetKey, r.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save terminal %s: %w", t.ID, err)
	}
	return nil
}

// Publish saves every active terminal and removes the retired ones
func (r *TerminalRepository) Publish(ctx context.Context, active, retired []*model.Terminal) error {
	pipe := r.redis.Pipeline()
	for _, t := range active {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal terminal: %w", err)
		}
		pipe.Set(ctx, terminalKeyPrefix+t.ID, data, r.ttl)
		pipe.SAdd(ctx, terminalSetKey, t.ID)
	}
	for _, t := range retired {
		pipe.Del(ctx, terminalKeyPrefix+t.ID)
		pipe.SRem(ctx, terminalSetKey, t.ID)
	}
	pipe.Expire(ctx, terminalSetKey, r.ttl*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish terminals: %w", err)
	}
	return nil
}

// Get retrieves one terminal
func (r *TerminalRepository) Get(ctx context.Context, id string) (*model.Terminal, error) {
	data, err := r.redis.Get(ctx, terminalKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("terminal not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get terminal: %w", err)
	}

	var t model.Terminal
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal terminal: %w", err)
	}
	return &t, nil
}

// List returns every published terminal ordered by creation time. Ids whose
// entry expired are dropped from the index.
func (r *TerminalRepository) List(ctx context.Context) ([]*model.Terminal, error) {
	ids, err := r.redis.SMembers(ctx, terminalSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list terminal ids: %w", err)
	}
	if len(ids) == 0 {
		return []*model.Terminal{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, pipe.Get(ctx, terminalKeyPrefix+id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to fetch terminals: %w", err)
	}

	terminals := make([]*model.Terminal, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			stale = append(stale, ids[i])
			continue
		}
		var t model.Terminal
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			continue
		}
		terminals = append(terminals, &t)
	}
	if len(stale) > 0 {
		_ = r.redis.SRem(ctx, terminalSetKey, stale...).Err()
	}

	sort.Slice(terminals, func(i, j int) bool {
		return terminals[i].CreatedAt.Before(terminals[j].CreatedAt)
	})
	return terminals, nil
}

// Delete removes one terminal
func (r *TerminalRepository) Delete(ctx context.Context, id string) error {
	pipe := r.redis.Pipeline()
	pipe.Del(ctx, terminalKeyPrefix+id)
	pipe.SRem(ctx, terminalSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete terminal: %w", err)
	}
	return nil
}
