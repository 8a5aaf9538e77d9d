package lock

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 加锁：SET key value NX PX ttl
//   - value 为持有者标识，释放时校验，防止误删别人的锁
//   - ttl 防止进程崩溃后死锁，必须大于事务超时
//
// 释放：Lua 脚本保证"校验 + 删除"原子执行
// ============================================================================

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 单个 key 的分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞获取锁，直到成功或 ctx 结束
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration) error {
	for {
		success, err := l.TryLock(ctx)
		if err != nil {
			// ctx 到期时 go-redis 可能返回网络超时，统一按 ctx 错误返回
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// RedisLocker 多实例部署时使用
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl, retryInterval: retryInterval}
}

// Acquire 每次加锁生成唯一的 value，owner 只作为排查用的前缀
// 锁过期后被别人拿到时，本次的 release 不会删掉别人的锁
func (r *RedisLocker) Acquire(ctx context.Context, key, owner string) (func(), error) {
	value := uuid.NewString()
	if owner != "" {
		value = owner + ":" + value
	}

	l := NewDistributedLock(r.client, key, value, r.ttl)
	if err := l.Lock(ctx, r.retryInterval); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 业务 ctx 可能已超时，释放锁使用独立的 ctx
			unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := l.Unlock(unlockCtx); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("释放分布式锁失败，等待过期")
			}
		})
	}, nil
}
