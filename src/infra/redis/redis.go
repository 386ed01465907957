package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient stores small durable values, such as the source connector's
// polling cursor. Values have no TTL: a cursor must survive restarts.
type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(addr string, poolSize int) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: poolSize,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})

	return &RedisClient{client: client}
}

// Get returns the stored value, or the empty string when the key is absent.
func (rc *RedisClient) Get(ctx context.Context, key string) (string, error) {
	value, err := rc.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (rc *RedisClient) Set(ctx context.Context, key, value string) error {
	return rc.client.Set(ctx, key, value, 0).Err()
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}
