package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps a collection as one JSON string under a key
type RedisStore[T any] struct {
	rdb *redis.Client
	key string
}

func NewRedisStore[T any](rdb *redis.Client, key string) *RedisStore[T] {
	return &RedisStore[T]{rdb: rdb, key: key}
}

// Load reads the collection. A missing key is an empty collection.
func (s *RedisStore[T]) Load(ctx context.Context) ([]T, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []T{}, nil
		}
		return []T{}, fmt.Errorf("failed to get %s: %w", s.key, err)
	}
	return decode[T](data)
}

// Save overwrites the key with the full collection
func (s *RedisStore[T]) Save(ctx context.Context, items []T) error {
	data, err := encode(items)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", s.key, err)
	}
	return nil
}
