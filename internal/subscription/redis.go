package subscription

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding all subscriptions.
const DefaultRedisKey = "_doorbell_subscriptions"

// RedisStore keeps subscriptions in a single Redis hash keyed by descriptor key.
type RedisStore struct {
	cli *redis.Client
	key string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(cli *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{cli: cli, key: key}
}

func (s *RedisStore) Create(ctx context.Context, sub Subscription) error {
	created, err := s.cli.HSetNX(ctx, s.key, sub.Key(), sub.Canonical()).Result()
	if err != nil {
		return fmt.Errorf("redis hsetnx: %w", err)
	}
	if !created {
		return ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Subscription, error) {
	vals, err := s.cli.HVals(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hvals: %w", err)
	}
	out := make([]Subscription, 0, len(vals))
	for _, v := range vals {
		var sub Subscription
		if err := json.Unmarshal([]byte(v), &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, sub Subscription) (int, error) {
	n, err := s.cli.HDel(ctx, s.key, sub.Key()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hdel: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	return s.cli.Close()
}
