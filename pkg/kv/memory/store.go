package memory

import (
	"context"

	"procsight/pkg/kv"

	"github.com/patrickmn/go-cache"
)

type Store struct {
	cache *cache.Cache
}

var _ kv.Store = &Store{}

func NewStore() *Store {
	// Telemetry blobs are overwritten every capture, so entries never expire.
	c := cache.New(cache.NoExpiration, 0)
	return &Store{
		cache: c,
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if x, found := s.cache.Get(key); found {
		return x.(string), true, nil
	}
	return "", false, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	s.cache.Set(key, value, cache.NoExpiration)
	return nil
}
