package cache

import (
	"context"
	"fmt"
	"time"

	"balanceledger/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// NewRedisClient 创建客户端并 Ping 一次，用户锁依赖它
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis %s:%d 失败: %w", cfg.Host, cfg.Port, err)
	}

	log.Info().Str("addr", client.Options().Addr).Int("db", cfg.DB).Msg("Redis 连接成功")
	return client, nil
}
