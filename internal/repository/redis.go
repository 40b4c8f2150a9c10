package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agenda/internal/config"
	"agenda/internal/ratelimit"

	"github.com/redis/go-redis/v9"
)

const limiterKeyPrefix = "booking_limiter:"

// RedisSessionRepository stores limiter state as JSON under a TTL so idle
// sessions expire on their own.
type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, ttl: ttl}
}

func limiterKey(sessionID string) string {
	return limiterKeyPrefix + sessionID
}

func (r *RedisSessionRepository) GetLimiterState(ctx context.Context, sessionID string) (*ratelimit.State, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, limiterKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get limiter state from redis: %w", err)
	}

	var state ratelimit.State
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal limiter state: %w", err)
	}
	return &state, nil
}

func (r *RedisSessionRepository) SetLimiterState(ctx context.Context, sessionID string, state *ratelimit.State) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal limiter state: %w", err)
	}
	if err := r.client.Set(ctx, limiterKey(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set limiter state in redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) ClearLimiterState(ctx context.Context, sessionID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, limiterKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete limiter state from redis: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}
