package dedupe

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "docbot:dedupe:"

// RedisStore shares the seen-set across instances behind a load balancer.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects using a redis:// URL and pings the server.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) CheckAndMark(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	created, err := s.client.SetNX(ctx, redisKeyPrefix+key, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !created, nil
}

func (s *RedisStore) Forget(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
