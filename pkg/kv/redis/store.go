package redis

import (
	"context"
	"errors"
	"fmt"

	"procsight/pkg/kv"

	"github.com/redis/go-redis/v9"
)

// Store keeps values under a key prefix so several monitors can share one Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ kv.Store = &Store{}

func NewStore(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

// NewClient parses url, falling back to treating it as a plain address.
func NewClient(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{
			Addr: url,
		}
	}
	return redis.NewClient(opt)
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
