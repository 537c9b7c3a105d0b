package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each key as a string holding the JSON array, the same
// shape the browser wrote to local storage.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Load(ctx context.Context, key string) ([]string, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load streams %s: %w", key, err)
	}
	return decodeIDs(raw)
}

func (s *RedisStore) Save(ctx context.Context, key string, ids []string) error {
	encoded, err := encodeIDs(ids)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(key), encoded, 0).Err(); err != nil {
		return fmt.Errorf("save streams %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
