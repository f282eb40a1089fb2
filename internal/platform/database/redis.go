package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/SlpAus/luna-spins-backend/internal/platform/config"
)

const redisPingTimeout = 2 * time.Second

// OpenRedis 创建Redis客户端，并用Ping确认连接可用
func OpenRedis(ctx context.Context, cfg config.RedisConfig, zlog zerolog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}

	zlog.Info().Str("address", cfg.Address).Msg("Redis 连接成功")
	return rdb, nil
}
