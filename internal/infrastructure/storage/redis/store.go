package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"polyfolio/internal/application/port"
)

// Store is a redis-backed KeyValueStore. Keys are namespaced under a
// prefix so several applications can share one instance. The backend TTL
// is belt-and-braces: entry-level expiry still lives in the value.
type Store struct {
	rdb    *redis.Client
	prefix string
}

func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "polyfolio"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(k string) string { return s.prefix + ":" + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

var _ port.KeyValueStore = (*Store)(nil)
