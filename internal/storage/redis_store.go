package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vendasb2b/cart-engine/pkg/logger"
)

// RedisKV stores cart records as plain Redis strings. A positive ttl expires
// abandoned carts; every write refreshes it.
type RedisKV struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisKV(client redis.Cmdable, ttl time.Duration) *RedisKV {
	return &RedisKV{client: client, ttl: ttl}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		logger.Error("Failed to read cart record from redis", err, map[string]interface{}{
			"key": key,
		})
		return "", err
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		logger.Error("Failed to write cart record to redis", err, map[string]interface{}{
			"key": key,
		})
		return err
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		logger.Error("Failed to delete cart records from redis", err, map[string]interface{}{
			"keys": keys,
		})
		return err
	}
	return nil
}

var _ KV = (*RedisKV)(nil)
