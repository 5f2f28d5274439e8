package port

import (
	"context"
	"time"

	"polyfolio/internal/domain/model"
)

// KeyValueStore is a flat binary KV surface backing the persisted caches.
// A ttl of zero means the backend keeps the value until overwritten;
// entry-level expiry is enforced by the cache layered on top.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SnapshotRepo persists the serialized application state across restarts.
// Load returns false when no snapshot has ever been saved.
type SnapshotRepo interface {
	Save(ctx context.Context, snap model.StateSnapshot) error
	Load(ctx context.Context) (model.StateSnapshot, bool, error)
	Close() error
}

// HistoryRepo records each derived portfolio valuation, newest first on
// read.
type HistoryRepo interface {
	Append(ctx context.Context, snap model.PortfolioSnapshot) error
	Recent(ctx context.Context, limit int) ([]model.PortfolioSnapshot, error)
}
