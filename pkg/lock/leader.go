// Package lock provides the Redis leader lock that keeps two managers from
// driving the same terminal pool.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"termpool/pkg/logger"
)

const (
	defaultTTL           = 30 * time.Second // 锁的 TTL，防止实例崩溃后死锁
	defaultRenewInterval = 10 * time.Second // 续期间隔，必须小于 TTL
	acquireTimeout       = 5 * time.Second  // 单次 SET NX 超时
)

// ErrNotAcquired returned when another instance holds the lock
var ErrNotAcquired = errors.New("lock held by another instance")

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

const renewScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`

// Lock leader lock contract
type Lock interface {
	// TryLock attempts a single acquisition
	TryLock(ctx context.Context) (bool, error)

	// Unlock releases the lock if held by this instance
	Unlock(ctx context.Context) error

	// IsHeld reports whether this instance currently holds the lock
	IsHeld() bool
}

// RedisLock Redis SET NX lock with background renewal.
// A nil client runs in single-instance mode: acquisition always succeeds.
type RedisLock struct {
	client        *redis.Client
	key           string
	value         string // 唯一标识，防止释放其他实例的锁
	ttl           time.Duration
	renewInterval time.Duration

	mu           sync.Mutex
	held         bool
	stopRenew    chan struct{}
	renewStopped bool
	lost         chan struct{}
}

// Option configures a RedisLock
type Option func(*RedisLock)

// WithTTL overrides the key TTL; the renew interval is kept at a third of it
func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLock) {
		l.ttl = ttl
		l.renewInterval = ttl / 3
	}
}

// NewRedisLock creates a leader lock on key
func NewRedisLock(client *redis.Client, key string, opts ...Option) *RedisLock {
	l := &RedisLock{
		client:        client,
		key:           key,
		value:         uuid.NewString(),
		ttl:           defaultTTL,
		renewInterval: defaultRenewInterval,
		lost:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryLock 尝试获取锁（带超时）
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		logger.Warn("redis client is nil, skipping leader lock (running in single-instance mode)")
		l.mu.Lock()
		l.held = true
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "lock %s already held by another instance", l.key)
		return false, nil
	}

	l.mu.Lock()
	l.held = true
	// 每次获取锁时创建新的 channel，支持多次 TryLock/Unlock 循环
	l.stopRenew = make(chan struct{})
	l.renewStopped = false
	l.lost = make(chan struct{})
	stop, lost := l.stopRenew, l.lost
	l.mu.Unlock()

	go l.renew(stop, lost)

	logger.InfoCtx(ctx, "lock %s acquired", l.key)
	return true, nil
}

// Acquire retries TryLock with exponential backoff until it succeeds, ctx is
// done, or maxWait elapses (0 waits until ctx is done)
func (l *RedisLock) Acquire(ctx context.Context, maxWait time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = l.ttl
	b.MaxElapsedTime = maxWait

	op := func() error {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return nil
}

// Unlock 释放锁，只删除自己持有的锁
func (l *RedisLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return nil
	}
	l.held = false
	if l.client == nil {
		l.mu.Unlock()
		return nil
	}
	if !l.renewStopped {
		l.renewStopped = true
		close(l.stopRenew)
	}
	l.mu.Unlock()

	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 1 {
		logger.InfoCtx(ctx, "lock %s released", l.key)
	} else {
		logger.WarnCtx(ctx, "lock %s was already released or held by another instance", l.key)
	}
	return nil
}

// IsHeld 检查是否持有锁
func (l *RedisLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Lost is closed when renewal fails after acquisition
func (l *RedisLock) Lost() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lost
}

// renew 自动续期锁（后台协程）
func (l *RedisLock) renew(stop <-chan struct{}, lost chan struct{}) {
	ticker := time.NewTicker(l.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
			result, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
			cancel()

			if err == nil && result == 1 {
				logger.Debugf("lock %s renewed", l.key)
				continue
			}
			if err != nil {
				logger.Warnf("failed to renew lock %s: %v", l.key, err)
			} else {
				logger.Warnf("lock %s renewal failed, lock lost", l.key)
			}

			l.mu.Lock()
			l.held = false
			l.mu.Unlock()
			close(lost)
			return
		}
	}
}
