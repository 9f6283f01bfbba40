package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hostelsystem/internal/config"

	"github.com/go-redis/redis/v8"
)

// InitRedis 建立 Redis 连接，供分布式锁使用
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	slog.Info("Redis 连接成功", "addr", client.Options().Addr)
	return client, nil
}
