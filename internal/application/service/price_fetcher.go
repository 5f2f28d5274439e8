package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"polyfolio/internal/application/port"
	"polyfolio/internal/domain/model"
)

type inflight struct {
	done  chan struct{}
	price decimal.Decimal
	ok    bool
}

// PriceFetcher resolves prices for sets of (instrument, side) keys through
// the quote cache, batching upstream calls for the misses. Concurrent
// overlapping calls share in-flight fetches so no key hits the upstream
// twice within a tick.
type PriceFetcher struct {
	api   port.PriceAPI
	cache *QuoteCache

	mu      sync.Mutex
	pending map[model.QuoteKey]*inflight

	single singleflight.Group
}

func NewPriceFetcher(api port.PriceAPI, cache *QuoteCache) *PriceFetcher {
	return &PriceFetcher{
		api:     api,
		cache:   cache,
		pending: make(map[model.QuoteKey]*inflight),
	}
}

// ResolvePrices returns the known price per instrument id for the requested
// keys. Cache hits are served directly; the rest go upstream in one bulk
// call. Keys the upstream does not answer are omitted, never zero-filled.
// Transient upstream failure degrades to whatever the cache had; the next
// scheduled tick is the retry.
func (f *PriceFetcher) ResolvePrices(ctx context.Context, keys []model.QuoteKey) map[string]decimal.Decimal {
	out, err := f.resolve(ctx, keys)
	if err != nil {
		log.Warn().Err(err).Int("keys", len(keys)).Msg("bulk price fetch failed, serving cache hits only")
	}
	return out
}

// Refresh is the strict variant behind the user-triggered refresh action:
// same resolution, but the upstream error surfaces to the caller.
func (f *PriceFetcher) Refresh(ctx context.Context, keys []model.QuoteKey) (map[string]decimal.Decimal, error) {
	return f.resolve(ctx, keys)
}

func (f *PriceFetcher) resolve(ctx context.Context, keys []model.QuoteKey) (map[string]decimal.Decimal, error) {
	now := time.Now()
	out := make(map[string]decimal.Decimal, len(keys))

	var claimed []model.QuoteKey
	joined := make(map[model.QuoteKey]*inflight)

	f.mu.Lock()
	for _, k := range keys {
		if _, dup := out[k.InstrumentID]; dup {
			continue
		}
		if q, ok := f.cache.Get(k, now); ok {
			out[k.InstrumentID] = q.Price
			continue
		}
		if fl, ok := f.pending[k]; ok {
			joined[k] = fl // another caller already owns this key
			continue
		}
		fl := &inflight{done: make(chan struct{})}
		f.pending[k] = fl
		claimed = append(claimed, k)
	}
	f.mu.Unlock()

	var fetchErr error
	if len(claimed) > 0 {
		fetchErr = f.fetchBatch(ctx, claimed, out)
	}

	for k, fl := range joined {
		select {
		case <-fl.done:
			if fl.ok {
				out[k.InstrumentID] = fl.price
			}
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	return out, fetchErr
}

// fetchBatch issues one bulk call for the claimed keys, writes results
// through the cache and settles the in-flight entries either way.
func (f *PriceFetcher) fetchBatch(ctx context.Context, claimed []model.QuoteKey, out map[string]decimal.Decimal) error {
	prices, err := f.api.BulkPrices(ctx, claimed)
	fetchedAt := time.Now()

	f.mu.Lock()
	for _, k := range claimed {
		fl := f.pending[k]
		if px, ok := prices[k.InstrumentID]; ok {
			f.cache.Put(model.Quote{
				InstrumentID: k.InstrumentID,
				Side:         k.Side,
				Price:        px,
				FetchedAt:    fetchedAt,
			})
			fl.price, fl.ok = px, true
			out[k.InstrumentID] = px
		}
		delete(f.pending, k)
		close(fl.done)
	}
	f.mu.Unlock()
	return err
}

// ResolvePrice fetches exactly one key, bypassing batch bookkeeping.
// Concurrent callers for the same key coalesce onto one upstream request.
// A fresh cache entry short-circuits the call.
func (f *PriceFetcher) ResolvePrice(ctx context.Context, key model.QuoteKey) (decimal.Decimal, bool) {
	now := time.Now()
	if q, ok := f.cache.Get(key, now); ok {
		return q.Price, true
	}

	flightKey := key.InstrumentID + ":" + string(key.Side)
	v, err, _ := f.single.Do(flightKey, func() (interface{}, error) {
		px, err := f.api.Price(ctx, key)
		if err != nil {
			return decimal.Decimal{}, err
		}
		f.cache.Put(model.Quote{
			InstrumentID: key.InstrumentID,
			Side:         key.Side,
			Price:        px,
			FetchedAt:    time.Now(),
		})
		return px, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("instrument", key.InstrumentID).Str("side", string(key.Side)).Msg("single price fetch failed")
		return decimal.Decimal{}, false
	}
	return v.(decimal.Decimal), true
}
