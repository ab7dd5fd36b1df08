// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package offchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/luxfi/channel"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps commitments in Redis. Entries expire after ttl; zero
// keeps them forever.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis instance at url, e.g.
// redis://localhost:6379/0
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

func (s *RedisStore) Put(ctx context.Context, key []byte, value []byte) error {
	return s.client.Set(ctx, string(key), value, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	v, err := s.client.Get(ctx, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: commitment %x", channel.ErrNotFound, key)
	}
	return v, err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
