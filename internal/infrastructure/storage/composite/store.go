package composite

import (
	"context"
	"time"

	"polyfolio/internal/application/port"
)

// Store layers key-value backends. Reads are served by the first layer
// that has the key; writes and deletes fan out to every layer so the
// layers converge. Putting a fast in-process store in front of redis keeps
// hot lookups local while the shared backend stays authoritative.
type Store struct {
	layers []port.KeyValueStore
}

func New(layers ...port.KeyValueStore) *Store {
	// nil layers are allowed; filter in constructor for safety
	out := make([]port.KeyValueStore, 0, len(layers))
	for _, l := range layers {
		if l != nil {
			out = append(out, l)
		}
	}
	return &Store{layers: out}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var firstErr error
	for _, l := range s.layers {
		value, ok, err := l.Get(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return value, true, nil
		}
	}
	return nil, false, firstErr
}

func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var firstErr error
	for _, l := range s.layers {
		if err := l.Put(ctx, key, value, ttl); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) Delete(ctx context.Context, key string) error {
	var firstErr error
	for _, l := range s.layers {
		if err := l.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.KeyValueStore = (*Store)(nil)
