package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix 避免与同一Redis实例中的其他数据冲突
const redisKeyPrefix = "luna:"

// RedisBackend 把键值对存放为Redis String
type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := b.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("无法从Redis读取 %s: %w", key, err)
	}
	return value, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key, value string) error {
	if err := b.rdb.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("无法写入Redis键 %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("无法删除Redis键 %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}
