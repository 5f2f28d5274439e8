package ttlcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"polyfolio/internal/application/port"
)

// Entry wraps a cached value with an absolute expiry. The expiry travels
// with the value so it survives in any backend, persistent or not.
type Entry[T any] struct {
	Data      T         `json:"data"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Cache is a typed TTL cache over a KeyValueStore. Keys follow the
// namespace:type:entityId convention. A read past expiry is a miss and
// evicts the entry; a corrupted entry is evicted and treated as absent.
type Cache[T any] struct {
	kv        port.KeyValueStore
	namespace string
	ttl       time.Duration
	now       func() time.Time
}

func New[T any](kv port.KeyValueStore, namespace string, ttl time.Duration) *Cache[T] {
	return &Cache[T]{kv: kv, namespace: namespace, ttl: ttl, now: time.Now}
}

func (c *Cache[T]) key(typ, entityID string) string {
	return fmt.Sprintf("%s:%s:%s", c.namespace, typ, entityID)
}

// Get returns the cached value if present and unexpired.
func (c *Cache[T]) Get(ctx context.Context, typ, entityID string) (T, bool) {
	var zero T
	key := c.key(typ, entityID)

	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return zero, false
	}
	if !ok {
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		// corrupted local entry: evict and treat as absent
		log.Warn().Err(err).Str("key", key).Msg("evicting corrupted cache entry")
		_ = c.kv.Delete(ctx, key)
		return zero, false
	}
	if !c.now().Before(entry.ExpiresAt) {
		_ = c.kv.Delete(ctx, key)
		return zero, false
	}
	return entry.Data, true
}

// Put stores a value with expiry now+ttl.
func (c *Cache[T]) Put(ctx context.Context, typ, entityID string, value T) error {
	entry := Entry[T]{Data: value, ExpiresAt: c.now().Add(c.ttl)}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.kv.Put(ctx, c.key(typ, entityID), raw, c.ttl)
}

// Delete removes an entry regardless of expiry.
func (c *Cache[T]) Delete(ctx context.Context, typ, entityID string) error {
	return c.kv.Delete(ctx, c.key(typ, entityID))
}
